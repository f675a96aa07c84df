package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// WithTransaction executes fn within a MongoDB transaction. Every operation
// inside fn must use the provided session context. Errors returned by fn
// abort the transaction and are returned wrapped.
func (ms *MongoStorage) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := ms.DBClient.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := session.WithTransaction(txnCtx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	}); err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}
