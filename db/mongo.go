package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

// ResetDBEnv drops every collection on startup when set to a non-empty value.
const ResetDBEnv = "REEVLO_MONGO_RESET_DB"

// MongoStorage uses an external MongoDB service for storing users, balances,
// applied payments and payout requests. Balance mutations run inside
// transactions, so the server must be a replica set member.
type MongoStorage struct {
	DBClient *mongo.Client
	database string
	keysLock sync.RWMutex

	users      *mongo.Collection
	balances   *mongo.Collection
	payments   *mongo.Collection
	payouts       *mongo.Collection
	verifications *mongo.Collection
	migrations    *mongo.Collection
}

// New connects to MongoDB, applies the pending migrations and returns the
// storage ready to use.
func New(url, database string) (*MongoStorage, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "database", database)
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(200)
	timeout := time.Second * 10
	opts.ConnectTimeout = &timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ms := &MongoStorage{
		DBClient: client,
		database: database,
	}
	ms.initCollections()
	if reset := os.Getenv(ResetDBEnv); reset != "" {
		if err := ms.Reset(); err != nil {
			return nil, err
		}
		return ms, nil
	}
	if err := ms.RunMigrationsUp(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return ms, nil
}

// initCollections sets the collection handles. The collections themselves,
// with their validators and indexes, are created by the migrations.
func (ms *MongoStorage) initCollections() {
	db := ms.DBClient.Database(ms.database)
	ms.users = db.Collection("users")
	ms.balances = db.Collection("balances")
	ms.payments = db.Collection("payments")
	ms.payouts = db.Collection("payouts")
	ms.verifications = db.Collection("verifications")
	ms.migrations = db.Collection("migrations")
}

// Close disconnects the client.
func (ms *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.DBClient.Disconnect(ctx); err != nil {
		log.Warn(err)
	}
}

// Reset drops every collection and runs the migrations again.
func (ms *MongoStorage) Reset() error {
	log.Infof("resetting database")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, c := range []*mongo.Collection{ms.users, ms.balances, ms.payments, ms.payouts, ms.verifications, ms.migrations} {
		if err := c.Drop(ctx); err != nil {
			return fmt.Errorf("failed to drop %s: %w", c.Name(), err)
		}
	}
	return ms.RunMigrationsUp()
}

// String dumps the whole database as JSON. Errors are logged and the
// affected collection is left empty in the output.
func (ms *MongoStorage) String() string {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var dump Collection
	if err := findAll(ctx, ms.users, bson.M{}, nil, &dump.Users); err != nil {
		log.Warn(err)
	}
	if err := findAll(ctx, ms.balances, bson.M{}, nil, &dump.Balances); err != nil {
		log.Warn(err)
	}
	if err := findAll(ctx, ms.payments, bson.M{}, nil, &dump.Payments); err != nil {
		log.Warn(err)
	}
	if err := findAll(ctx, ms.payouts, bson.M{}, nil, &dump.Payouts); err != nil {
		log.Warn(err)
	}
	data, err := json.Marshal(&dump)
	if err != nil {
		log.Warn(err)
		return "{}"
	}
	return string(data)
}

// Import upserts a JSON dataset produced by String() into the database.
func (ms *MongoStorage) Import(jsonData []byte) error {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()

	log.Infof("importing database")
	var dump Collection
	if err := json.Unmarshal(jsonData, &dump); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	upsert := func(c *mongo.Collection, id any, doc any) {
		opts := options.Replace().SetUpsert(true)
		if _, err := c.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts); err != nil {
			log.Warnw("error importing document", "collection", c.Name(), "id", id, "error", err)
		}
	}
	log.Infow("importing documents", "users", len(dump.Users), "balances", len(dump.Balances),
		"payments", len(dump.Payments), "payouts", len(dump.Payouts))
	for _, u := range dump.Users {
		upsert(ms.users, u.ID, u)
	}
	for _, b := range dump.Balances {
		upsert(ms.balances, b.UserID, b)
	}
	for _, p := range dump.Payments {
		upsert(ms.payments, p.SessionID, p)
	}
	for _, p := range dump.Payouts {
		upsert(ms.payouts, p.ID, p)
	}
	log.Infof("imported database")
	return nil
}
