package migrations

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	AddMigration(2, "initial_indexes", upInitialIndexes, downInitialIndexes)
}

const (
	usersEmailIndex        = "email_unique"
	usersSubscriptionIndex = "stripeSubscriptionId_sparse"
	paymentsUserIndex      = "userId_processedAt"
	payoutsUserIndex       = "userId_createdAt"
	payoutsStatusIndex     = "status"
)

func upInitialIndexes(ctx context.Context, database *mongo.Database) error {
	users := database.Collection("users")
	if _, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(usersEmailIndex).SetUnique(true),
		},
		// webhooks for cancelled memberships only carry the subscription
		{
			Keys:    bson.D{{Key: "stripeSubscriptionId", Value: 1}},
			Options: options.Index().SetName(usersSubscriptionIndex).SetSparse(true),
		},
	}); err != nil {
		return fmt.Errorf("failed to create indexes for users: %w", err)
	}

	if _, err := database.Collection("payments").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "processedAt", Value: -1},
		},
		Options: options.Index().SetName(paymentsUserIndex),
	}); err != nil {
		return fmt.Errorf("failed to create index on userId for payments: %w", err)
	}

	if _, err := database.Collection("payouts").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName(payoutsUserIndex),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName(payoutsStatusIndex),
		},
	}); err != nil {
		return fmt.Errorf("failed to create indexes for payouts: %w", err)
	}
	return nil
}

func downInitialIndexes(ctx context.Context, database *mongo.Database) error {
	if err := dropIndexes(ctx, database.Collection("users"), usersEmailIndex, usersSubscriptionIndex); err != nil {
		return err
	}
	if err := dropIndexes(ctx, database.Collection("payments"), paymentsUserIndex); err != nil {
		return err
	}
	return dropIndexes(ctx, database.Collection("payouts"), payoutsUserIndex, payoutsStatusIndex)
}
