package db

import (
	"context"
	"fmt"
	"time"

	"github.com/reevlo/reevlo-backend/migrations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

const migrationsTimeout = 10 * time.Minute

// MigrationRecord is the document stored for every applied migration.
type MigrationRecord struct {
	Version   int       `json:"version" bson:"version"`
	Name      string    `json:"name" bson:"name"`
	AppliedAt time.Time `json:"appliedAt" bson:"applied_at"`
}

// RunMigrationsUp applies every registered migration newer than the last
// applied one, in version order.
func (ms *MongoStorage) RunMigrationsUp() error {
	ctx, cancel := context.WithTimeout(context.Background(), migrationsTimeout)
	defer cancel()

	last, err := ms.lastAppliedMigration(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}
	database := ms.DBClient.Database(ms.database)
	applied := 0
	for _, m := range migrations.SortedByVersionAsc() {
		if m.Version <= last {
			continue
		}
		log.Infow("applying migration", "version", m.Version, "name", m.Name)
		if err := m.Up(ctx, database); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		record := MigrationRecord{Version: m.Version, Name: m.Name, AppliedAt: time.Now()}
		if _, err := ms.migrations.InsertOne(ctx, record); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		applied++
	}
	if applied == 0 {
		log.Debugw("database is up-to-date", "version", last)
		return nil
	}
	log.Infow("database migrations completed", "applied", applied)
	return nil
}

// RunMigrationsDown rolls back the last steps migrations. A non-positive
// steps value rolls back every applied migration.
func (ms *MongoStorage) RunMigrationsDown(steps int) error {
	ctx, cancel := context.WithTimeout(context.Background(), migrationsTimeout)
	defer cancel()

	last, err := ms.lastAppliedMigration(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}
	if steps <= 0 || steps > last {
		steps = last
	}
	log.Infow("rolling back database migrations", "steps", steps)
	registry := migrations.AsMap()
	database := ms.DBClient.Database(ms.database)
	for version := last; version > last-steps; version-- {
		m, ok := registry[version]
		if !ok {
			return fmt.Errorf("migration %d not found in registry", version)
		}
		log.Infow("rolling back migration", "version", m.Version, "name", m.Name)
		if err := m.Down(ctx, database); err != nil {
			return fmt.Errorf("failed to rollback migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := ms.migrations.DeleteOne(ctx, bson.M{"version": version}); err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", version, err)
		}
	}
	return nil
}

// AppliedMigrations returns the applied migrations, newest first.
func (ms *MongoStorage) AppliedMigrations() ([]MigrationRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	records := []MigrationRecord{}
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: -1}})
	if err := findAll(ctx, ms.migrations, bson.M{}, opts, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (ms *MongoStorage) lastAppliedMigration(ctx context.Context) (int, error) {
	record := MigrationRecord{}
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	if err := ms.migrations.FindOne(ctx, bson.M{}, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}
	return record.Version, nil
}
