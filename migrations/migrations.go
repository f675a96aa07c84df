// Package migrations keeps the ordered list of MongoDB schema migrations.
// Every migration registers itself from an init function in its own file,
// named after its version.
package migrations

import (
	"context"
	"maps"
	"slices"

	"go.mongodb.org/mongo-driver/mongo"
)

// MigrationFunc applies or reverts a migration on the given database.
type MigrationFunc func(ctx context.Context, database *mongo.Database) error

// Migration is a versioned schema change. Up must be safe to run on a
// database that already has the change applied.
type Migration struct {
	Version int
	Name    string
	Up      MigrationFunc
	Down    MigrationFunc
}

var registry = map[int]Migration{}

// AddMigration registers a migration, replacing any other with the same
// version.
func AddMigration(version int, name string, up, down MigrationFunc) {
	registry[version] = Migration{
		Version: version,
		Name:    name,
		Up:      up,
		Down:    down,
	}
}

// DelMigration removes a migration from the registry.
func DelMigration(version int) { delete(registry, version) }

// SortedByVersionAsc returns the registered migrations, oldest first.
func SortedByVersionAsc() []Migration {
	migs := slices.Collect(maps.Values(registry))
	slices.SortFunc(migs, func(a, b Migration) int { return a.Version - b.Version })
	return migs
}

// AsMap returns a copy of the registry indexed by version.
func AsMap() map[int]Migration {
	return maps.Clone(registry)
}
