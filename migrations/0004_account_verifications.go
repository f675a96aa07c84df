package migrations

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

func init() {
	AddMigration(4, "account_verifications", upAccountVerifications, downAccountVerifications)
}

const (
	verificationsCodeIndex = "code_type"
	verificationsTTLIndex  = "expiration_ttl"
)

var verificationsCollectionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "userId", "code", "type", "expiration"},
		"properties": bson.M{
			"type": bson.M{
				"enum":        []string{"account", "password"},
				"description": "must be a known verification code type",
			},
			"expiration": bson.M{
				"bsonType":    "date",
				"description": "must be a date and is required",
			},
		},
	},
}

// upAccountVerifications creates the verification codes collection and
// marks the accounts created before email verification existed as verified.
func upAccountVerifications(ctx context.Context, database *mongo.Database) error {
	current, err := listCollectionsInDB(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to get current collections: %w", err)
	}
	if !slices.Contains(current, "verifications") {
		opts := options.CreateCollection().
			SetValidator(verificationsCollectionValidator).
			SetValidationLevel("strict").
			SetValidationAction("error")
		if err := database.CreateCollection(ctx, "verifications", opts); err != nil {
			return fmt.Errorf("failed to create collection verifications: %w", err)
		}
	}
	if _, err := database.Collection("verifications").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "code", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetName(verificationsCodeIndex),
		},
		// expired codes are removed by the server
		{
			Keys:    bson.D{{Key: "expiration", Value: 1}},
			Options: options.Index().SetName(verificationsTTLIndex).SetExpireAfterSeconds(0),
		},
	}); err != nil {
		return fmt.Errorf("failed to create indexes for verifications: %w", err)
	}
	res, err := database.Collection("users").UpdateMany(ctx,
		bson.M{"verified": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"verified": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to verify existing users: %w", err)
	}
	if res.ModifiedCount > 0 {
		log.Infow("marked existing users as verified", "users", res.ModifiedCount)
	}
	return nil
}

// downAccountVerifications drops the pending codes. The verified flag stays
// on the users, older versions ignore it.
func downAccountVerifications(ctx context.Context, database *mongo.Database) error {
	return database.Collection("verifications").Drop(ctx)
}
