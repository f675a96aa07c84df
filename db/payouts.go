package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreatePayout deducts the payout coins from the user balance and stores the
// request, both in one transaction. The deduction only matches when the
// balance covers it, otherwise ErrInsufficientBalance is returned and
// nothing changes. It returns the remaining balance.
func (ms *MongoStorage) CreatePayout(payout *Payout) (int64, error) {
	if payout == nil || payout.UserID == "" || payout.Coins <= 0 {
		return 0, ErrInvalidData
	}
	if payout.ID == "" {
		payout.ID = uuid.NewString()
	}
	now := time.Now()
	payout.Status = PayoutPending
	payout.CreatedAt = now
	payout.UpdatedAt = now
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var remaining int64
	err := ms.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		filter := bson.M{
			"_id":          payout.UserID,
			"virtualMoney": bson.M{"$gte": payout.Coins},
		}
		update := bson.M{
			"$inc": bson.M{"virtualMoney": -payout.Coins},
			"$set": bson.M{"updatedAt": now},
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		balance := &Balance{}
		if err := ms.balances.FindOneAndUpdate(sessCtx, filter, update, opts).Decode(balance); err != nil {
			if err == mongo.ErrNoDocuments {
				return ErrInsufficientBalance
			}
			return err
		}
		remaining = balance.VirtualMoney
		_, err := ms.payouts.InsertOne(sessCtx, payout)
		return err
	})
	if errors.Is(err, ErrInsufficientBalance) {
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// Payout returns the payout request with the given ID.
func (ms *MongoStorage) Payout(id string) (*Payout, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	payout := &Payout{}
	if err := ms.payouts.FindOne(ctx, bson.M{"_id": id}).Decode(payout); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return payout, nil
}

// Payouts returns the payout requests of the user, newest first.
func (ms *MongoStorage) Payouts(userID string) ([]Payout, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	payouts := []Payout{}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if err := findAll(ctx, ms.payouts, bson.M{"userId": userID}, opts, &payouts); err != nil {
		return nil, err
	}
	return payouts, nil
}

// SetPayoutStatus settles a pending payout. Only pending payouts can move,
// and only to paid or rejected. Rejecting a payout returns its coins to the
// user balance in the same transaction.
func (ms *MongoStorage) SetPayoutStatus(id string, status PayoutStatus) error {
	if status != PayoutPaid && status != PayoutRejected {
		return ErrInvalidTransition
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	err := ms.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		payout := &Payout{}
		filter := bson.M{"_id": id, "status": PayoutPending}
		update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}}
		if err := ms.payouts.FindOneAndUpdate(sessCtx, filter, update).Decode(payout); err != nil {
			if err != mongo.ErrNoDocuments {
				return err
			}
			count, cerr := ms.payouts.CountDocuments(sessCtx, bson.M{"_id": id})
			if cerr != nil {
				return cerr
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrInvalidTransition
		}
		if status == PayoutRejected {
			_, err := ms.incBalance(sessCtx, payout.UserID, payout.Coins)
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrInvalidTransition):
		return ErrInvalidTransition
	}
	return err
}
