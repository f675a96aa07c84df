package migrations

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

func init() {
	AddMigration(3, "merge_legacy_balances", upMergeLegacyBalances, downMergeLegacyBalances)
}

// legacyUser holds the fields older deployments kept on the user document:
// a second coin counter and the list of applied checkout sessions.
type legacyUser struct {
	ID                string   `bson:"_id"`
	Coins             int64    `bson:"coins"`
	ProcessedSessions []string `bson:"processedSessions"`
}

// upMergeLegacyBalances moves the legacy coin counters into the balances
// collection and the legacy session list into payments, then removes both
// fields from the users. Every user is merged in its own transaction, so a
// failed run leaves each user either fully merged or untouched and can be
// run again. Sessions already present in payments are kept as they are.
func upMergeLegacyBalances(ctx context.Context, database *mongo.Database) error {
	users := database.Collection("users")

	filter := bson.M{"$or": bson.A{
		bson.M{"coins": bson.M{"$exists": true}},
		bson.M{"processedSessions": bson.M{"$exists": true}},
	}}
	cursor, err := users.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to find legacy users: %w", err)
	}
	var legacy []legacyUser
	if err := cursor.All(ctx, &legacy); err != nil {
		return fmt.Errorf("failed to decode legacy users: %w", err)
	}

	session, err := database.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	merged := 0
	for _, user := range legacy {
		done, err := session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
			return mergeLegacyUser(sessCtx, database, user)
		})
		if err != nil {
			return fmt.Errorf("failed to merge legacy user %s: %w", user.ID, err)
		}
		if done.(bool) {
			merged++
		}
	}
	if merged > 0 {
		log.Infow("merged legacy balances", "users", merged)
	}
	return nil
}

// mergeLegacyUser runs inside a transaction. The legacy fields are removed
// first, conditioned on the values read, so a user merged by a concurrent
// run is skipped instead of credited twice.
func mergeLegacyUser(sessCtx mongo.SessionContext, database *mongo.Database, user legacyUser) (bool, error) {
	filter := bson.M{"_id": user.ID}
	if user.Coins != 0 {
		filter["coins"] = user.Coins
	}
	res, err := database.Collection("users").UpdateOne(sessCtx, filter,
		bson.M{"$unset": bson.M{"coins": "", "processedSessions": ""}})
	if err != nil {
		return false, fmt.Errorf("failed to clean legacy fields: %w", err)
	}
	if res.ModifiedCount == 0 {
		return false, nil
	}
	now := time.Now()
	if user.Coins > 0 {
		if _, err := database.Collection("balances").UpdateOne(sessCtx,
			bson.M{"_id": user.ID},
			bson.M{"$inc": bson.M{"virtualMoney": user.Coins}, "$set": bson.M{"updatedAt": now}},
			options.Update().SetUpsert(true),
		); err != nil {
			return false, fmt.Errorf("failed to merge coins: %w", err)
		}
	}
	// a failed insert aborts the transaction, so existing payments are
	// left alone with an upsert instead
	for _, sessionID := range user.ProcessedSessions {
		if _, err := database.Collection("payments").UpdateOne(sessCtx,
			bson.M{"_id": sessionID},
			bson.M{"$setOnInsert": bson.M{
				"userId":      user.ID,
				"type":        "coin",
				"source":      "legacy",
				"processedAt": now,
			}},
			options.Update().SetUpsert(true),
		); err != nil {
			return false, fmt.Errorf("failed to merge session %s: %w", sessionID, err)
		}
	}
	return true, nil
}

// downMergeLegacyBalances moves the balances back to the user documents and
// turns the legacy payments into session lists again.
func downMergeLegacyBalances(ctx context.Context, database *mongo.Database) error {
	users := database.Collection("users")
	balances := database.Collection("balances")
	payments := database.Collection("payments")

	balanceCursor, err := balances.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	var allBalances []struct {
		UserID       string `bson:"_id"`
		VirtualMoney int64  `bson:"virtualMoney"`
	}
	if err := balanceCursor.All(ctx, &allBalances); err != nil {
		return err
	}
	for _, b := range allBalances {
		if _, err := users.UpdateOne(ctx, bson.M{"_id": b.UserID},
			bson.M{"$set": bson.M{"coins": b.VirtualMoney}}); err != nil {
			return fmt.Errorf("failed to restore coins of user %s: %w", b.UserID, err)
		}
	}
	if _, err := balances.DeleteMany(ctx, bson.M{}); err != nil {
		return err
	}

	paymentCursor, err := payments.Find(ctx, bson.M{"source": "legacy"})
	if err != nil {
		return err
	}
	var legacy []struct {
		SessionID string `bson:"_id"`
		UserID    string `bson:"userId"`
	}
	if err := paymentCursor.All(ctx, &legacy); err != nil {
		return err
	}
	for _, p := range legacy {
		if _, err := users.UpdateOne(ctx, bson.M{"_id": p.UserID},
			bson.M{"$addToSet": bson.M{"processedSessions": p.SessionID}}); err != nil {
			return fmt.Errorf("failed to restore session %s: %w", p.SessionID, err)
		}
	}
	if _, err := payments.DeleteMany(ctx, bson.M{"source": "legacy"}); err != nil {
		return err
	}
	return nil
}
