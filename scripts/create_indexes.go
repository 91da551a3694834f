// Creates the MongoDB indexes the API relies on. Run once against a fresh
// database:
//
//	MONGODB_URI=mongodb://localhost:27017 DB_NAME=blog go run ./scripts
package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mkrajcovic/blog-backend/internal/config"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.DBName)

	indexes := map[string][]mongo.IndexModel{
		"posts": {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "author", Value: 1}, {Key: "createdAt", Value: -1}},
			},
			{
				Keys: bson.D{{Key: "locale", Value: 1}, {Key: "createdAt", Value: -1}},
			},
		},
		"categories": {
			{
				Keys: bson.D{{Key: "parent_id", Value: 1}, {Key: "order", Value: 1}},
			},
		},
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for coll, models := range indexes {
		names, err := db.Collection(coll).Indexes().CreateMany(ctx, models)
		if err != nil {
			logrus.WithError(err).Fatalf("Failed to create indexes on %s", coll)
		}
		logrus.Infof("Created indexes on %s: %v", coll, names)
	}
}
