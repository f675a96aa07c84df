package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Balance returns the coin balance of the user. Users that never received
// coins have a zero balance.
func (ms *MongoStorage) Balance(userID string) (*Balance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	balance := &Balance{}
	if err := ms.balances.FindOne(ctx, bson.M{"_id": userID}).Decode(balance); err != nil {
		if err == mongo.ErrNoDocuments {
			return &Balance{UserID: userID}, nil
		}
		return nil, err
	}
	return balance, nil
}

// incBalance adds delta to the balance of the user, creating the balance
// document when missing, and returns the resulting amount.
func (ms *MongoStorage) incBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{
		"$inc": bson.M{"virtualMoney": delta},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	balance := &Balance{}
	if err := ms.balances.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(balance); err != nil {
		return 0, err
	}
	return balance.VirtualMoney, nil
}

// IsProcessed reports whether the checkout session was already applied.
func (ms *MongoStorage) IsProcessed(sessionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	count, err := ms.payments.CountDocuments(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Payments returns the applied sessions of the user, newest first.
func (ms *MongoStorage) Payments(userID string) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	payments := []Payment{}
	opts := options.Find().SetSort(bson.D{{Key: "processedAt", Value: -1}})
	if err := findAll(ctx, ms.payments, bson.M{"userId": userID}, opts, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// recordPayment inserts the payment inside a transaction. A duplicated
// session identifier becomes ErrAlreadyProcessed.
func (ms *MongoStorage) recordPayment(sessCtx mongo.SessionContext, payment *Payment) error {
	if payment.ProcessedAt.IsZero() {
		payment.ProcessedAt = time.Now()
	}
	if _, err := ms.payments.InsertOne(sessCtx, payment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyProcessed
		}
		return err
	}
	return nil
}

// CreditCoins records the checkout session and credits its coins in a single
// transaction. It returns the new balance, or ErrAlreadyProcessed if the
// session had been applied before, in which case nothing changes.
func (ms *MongoStorage) CreditCoins(payment *Payment) (int64, error) {
	if payment == nil || payment.SessionID == "" || payment.UserID == "" || payment.Coins <= 0 {
		return 0, ErrInvalidData
	}
	payment.Type = PaymentCoins
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var newBalance int64
	err := ms.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := ms.recordPayment(sessCtx, payment); err != nil {
			return err
		}
		var err error
		newBalance, err = ms.incBalance(sessCtx, payment.UserID, payment.Coins)
		return err
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		return 0, ErrAlreadyProcessed
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ActivatePremium records the membership checkout session and marks the user
// as premium in a single transaction. Replays return ErrAlreadyProcessed.
func (ms *MongoStorage) ActivatePremium(payment *Payment) error {
	if payment == nil || payment.SessionID == "" || payment.UserID == "" {
		return ErrInvalidData
	}
	payment.Type = PaymentMembership
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	err := ms.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := ms.recordPayment(sessCtx, payment); err != nil {
			return err
		}
		set := bson.M{
			"premium":      true,
			"premiumSince": payment.ProcessedAt,
		}
		if payment.SubscriptionID != "" {
			set["stripeSubscriptionId"] = payment.SubscriptionID
		}
		res, err := ms.users.UpdateOne(sessCtx, bson.M{"_id": payment.UserID}, bson.M{"$set": set})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		return ErrAlreadyProcessed
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	}
	return err
}

// DeactivatePremium clears the membership of the user.
func (ms *MongoStorage) DeactivatePremium(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	res, err := ms.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set":   bson.M{"premium": false},
		"$unset": bson.M{"stripeSubscriptionId": ""},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCoins credits coins without a checkout session. It is meant for
// operators and development tooling.
func (ms *MongoStorage) AddCoins(userID string, coins int64) (int64, error) {
	if coins <= 0 {
		return 0, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if _, err := ms.findUser(ctx, bson.M{"_id": userID}); err != nil {
		return 0, err
	}
	return ms.incBalance(ctx, userID, coins)
}
