package test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

const (
	// MongoImage is the MongoDB image used by the integration tests.
	MongoImage = "mongo:7"
	// MongoReplicaSet is the replica set name. Transactions need one.
	MongoReplicaSet = "rs0"
)

// StartMongoContainer starts a single node MongoDB replica set.
func StartMongoContainer(ctx context.Context) (*mongodb.MongoDBContainer, error) {
	return mongodb.Run(ctx, MongoImage, mongodb.WithReplicaSet(MongoReplicaSet))
}

// MongoURI returns a connection string for the container that talks to the
// node directly, skipping the replica set member discovery.
func MongoURI(ctx context.Context, container *mongodb.MongoDBContainer) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("mongodb://%s:%s/?directConnection=true", host, port.Port()), nil
}

// RandomDatabaseName returns a unique database name so tests sharing a
// container don't see each other's data.
func RandomDatabaseName() string {
	return fmt.Sprintf("reevlo-test-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}
