package migrations

import (
	"context"
	"fmt"
	"slices"

	"github.com/reevlo/reevlo-backend/internal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(1, "initial_collections", upInitialCollections, downInitialCollections)
}

var collectionsToCreate = []string{
	"users",
	"balances",
	"payments",
	"payouts",
	"migrations",
}

var collectionsValidators = map[string]bson.M{
	"users":    usersCollectionValidator,
	"balances": balancesCollectionValidator,
	"payments": paymentsCollectionValidator,
	"payouts":  payoutsCollectionValidator,
}

var usersCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "email", "password"},
		"properties": bson.M{
			"email": bson.M{
				"bsonType":    "string",
				"description": "must be an email and is required",
				"pattern":     internal.EmailRegexTemplate,
			},
			"password": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
				"minLength":   8,
			},
			"premium": bson.M{
				"bsonType":    "bool",
				"description": "must be a boolean",
			},
		},
	},
}

// balances can never go below zero, payouts rely on it
var balancesCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "virtualMoney"},
		"properties": bson.M{
			"virtualMoney": bson.M{
				"bsonType":    []string{"int", "long"},
				"description": "must be a non negative integer and is required",
				"minimum":     0,
			},
		},
	},
}

var paymentsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "userId", "type", "source"},
		"properties": bson.M{
			"userId": bson.M{
				"bsonType":    "string",
				"description": "must be a string and is required",
			},
			"type": bson.M{
				"enum":        []string{"coin", "membership"},
				"description": "must be a known checkout type",
			},
			"coins": bson.M{
				"bsonType":    []string{"int", "long"},
				"description": "must be a non negative integer",
				"minimum":     0,
			},
		},
	},
}

var payoutsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "userId", "coins", "status"},
		"properties": bson.M{
			"coins": bson.M{
				"bsonType":    []string{"int", "long"},
				"description": "must be a positive integer and is required",
				"minimum":     1,
			},
			"status": bson.M{
				"enum":        []string{"pending", "paid", "rejected"},
				"description": "must be a known payout status",
			},
		},
	},
}

func upInitialCollections(ctx context.Context, database *mongo.Database) error {
	current, err := listCollectionsInDB(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to get current collections: %w", err)
	}
	for _, name := range collectionsToCreate {
		if slices.Contains(current, name) {
			continue
		}
		opts := options.CreateCollection()
		if validator, ok := collectionsValidators[name]; ok {
			opts = opts.SetValidator(validator).SetValidationLevel("strict").SetValidationAction("error")
		}
		if err := database.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// downInitialCollections keeps the collections, dropping them would lose
// every balance.
func downInitialCollections(context.Context, *mongo.Database) error {
	return nil
}
