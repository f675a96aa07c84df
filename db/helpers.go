package db

import (
	"context"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// findAll runs a find query and decodes every document into out, which must
// be a pointer to a slice.
func findAll(ctx context.Context, c *mongo.Collection, filter any, opts *options.FindOptions, out any) error {
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "collection", c.Name(), "error", err)
		}
	}()
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", c.Name(), err)
	}
	return nil
}

// dynamicUpdateDocument creates a BSON update document from a struct,
// including only non-zero fields. The struct fields must have a bson tag to
// be included and the _id field is always skipped.
func dynamicUpdateDocument(item any, alwaysUpdateTags []string) (bson.M, error) {
	val := reflect.ValueOf(item)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if !val.IsValid() || val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input must be a valid struct")
	}
	always := make(map[string]bool, len(alwaysUpdateTags))
	for _, tag := range alwaysUpdateTags {
		always[tag] = true
	}
	update := bson.M{}
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanInterface() {
			continue
		}
		tag := bsonName(typ.Field(i).Tag.Get("bson"))
		if tag == "" || tag == "-" || tag == "_id" {
			continue
		}
		if always[tag] || !field.IsZero() {
			update[tag] = field.Interface()
		}
	}
	return bson.M{"$set": update}, nil
}

// bsonName strips the options from a bson struct tag.
func bsonName(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}
