package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.vocdoni.io/dvote/log"
)

// membershipFields are owned by ActivatePremium and DeactivatePremium, and
// verified by VerifyUserAccount. SetUser ignores them on updates.
var membershipFields = []string{"premium", "premiumSince", "stripeSubscriptionId", "verified"}

func (ms *MongoStorage) findUser(ctx context.Context, filter bson.M) (*User, error) {
	user := &User{}
	if err := ms.users.FindOne(ctx, filter).Decode(user); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// User method returns the user with the given ID. If the user doesn't exist, it
// returns ErrNotFound.
func (ms *MongoStorage) User(id string) (*User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return ms.findUser(ctx, bson.M{"_id": id})
}

// UserByEmail method returns the user with the given email. If the user
// doesn't exist, it returns ErrNotFound.
func (ms *MongoStorage) UserByEmail(email string) (*User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return ms.findUser(ctx, bson.M{"email": email})
}

// UserBySubscriptionID returns the user that owns the given membership
// subscription.
func (ms *MongoStorage) UserBySubscriptionID(subscriptionID string) (*User, error) {
	if subscriptionID == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return ms.findUser(ctx, bson.M{"stripeSubscriptionId": subscriptionID})
}

// SetUser method creates or updates the user in the database. A user without
// ID is created with a new random one, which is returned. For an existing
// user only the non-zero fields are updated. Creating a user with an email
// already in use returns ErrAlreadyExists.
func (ms *MongoStorage) SetUser(user *User) (string, error) {
	if user == nil || user.Email == "" {
		return "", ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now()
		}
		if _, err := ms.users.InsertOne(ctx, user); err != nil {
			user.ID = ""
			if mongo.IsDuplicateKeyError(err) {
				return "", ErrAlreadyExists
			}
			return "", err
		}
		return user.ID, nil
	}
	updateDoc, err := dynamicUpdateDocument(user, nil)
	if err != nil {
		return "", err
	}
	set := updateDoc["$set"].(bson.M)
	for _, field := range membershipFields {
		delete(set, field)
	}
	res, err := ms.users.UpdateOne(ctx, bson.M{"_id": user.ID}, updateDoc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrAlreadyExists
		}
		return "", err
	}
	if res.MatchedCount == 0 {
		return "", ErrNotFound
	}
	return user.ID, nil
}

// SetStripeCustomerID links the user to its payment processor customer.
func (ms *MongoStorage) SetStripeCustomerID(userID, customerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	res, err := ms.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"stripeCustomerId": customerID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DelUser removes the user and its balance. Applied payments and payouts are
// kept for accounting.
func (ms *MongoStorage) DelUser(id string) error {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	res, err := ms.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := ms.balances.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		log.Warnw("failed to delete balance of removed user", "userID", id, "error", err)
	}
	if _, err := ms.verifications.DeleteMany(ctx, bson.M{"userId": id}); err != nil {
		log.Warnw("failed to delete verification codes of removed user", "userID", id, "error", err)
	}
	return nil
}
