package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetVerificationCode stores the hashed code of the given type for the user,
// replacing any previous one of the same type.
func (ms *MongoStorage) SetVerificationCode(userID, code string, t CodeType, expiration time.Time) error {
	if userID == "" || code == "" {
		return ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	// try to get the user to ensure it exists
	if _, err := ms.findUser(ctx, bson.M{"_id": userID}); err != nil {
		return err
	}
	verification := &UserVerification{
		ID:         verificationID(userID, t),
		UserID:     userID,
		Code:       code,
		Type:       t,
		Expiration: expiration,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := ms.verifications.ReplaceOne(ctx, bson.M{"_id": verification.ID}, verification, opts)
	return err
}

// UserByVerificationCode returns the user owning the hashed code. It returns
// ErrNotFound for unknown codes and ErrVerificationExpired for expired ones.
func (ms *MongoStorage) UserByVerificationCode(code string, t CodeType) (*User, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	verification := &UserVerification{}
	err := ms.verifications.FindOne(ctx, bson.M{"code": code, "type": t}).Decode(verification)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// the TTL monitor removes expired codes only once a minute
	if time.Now().After(verification.Expiration) {
		return nil, ErrVerificationExpired
	}
	return ms.findUser(ctx, bson.M{"_id": verification.UserID})
}

// VerifyUserAccount marks the user as verified and removes its account
// verification code.
func (ms *MongoStorage) VerifyUserAccount(userID string) error {
	return ms.consumeCode(userID, CodeTypeAccountVerification, bson.M{"verified": true})
}

// ResetUserPassword replaces the password hash of the user and removes its
// password reset code. Receiving the code proves the email is the user's,
// so the account is verified too.
func (ms *MongoStorage) ResetUserPassword(userID, password string) error {
	if password == "" {
		return ErrInvalidData
	}
	return ms.consumeCode(userID, CodeTypePasswordReset, bson.M{"password": password, "verified": true})
}

// consumeCode sets the fields on the user and deletes the code of type t in
// a single transaction.
func (ms *MongoStorage) consumeCode(userID string, t CodeType, set bson.M) error {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return ms.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		res, err := ms.users.UpdateOne(sessCtx, bson.M{"_id": userID}, bson.M{"$set": set})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		_, err = ms.verifications.DeleteOne(sessCtx, bson.M{"_id": verificationID(userID, t)})
		return err
	})
}
