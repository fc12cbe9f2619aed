package datastore

import (
	"context"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"veridoc.io/infrastructure/logger"
)

var (
	DocumentRecordModel *mongo.Collection

	client *mongo.Client
)

func ConnectToDatabase() {
	url := os.Getenv("DB_URL")

	if url == "" {
		logger.Error("mongo url missing")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(url)
	clientOpts.SetMinPoolSize(5)
	clientOpts.SetMaxPoolSize(10)

	var err error
	client, err = mongo.Connect(ctx, clientOpts)

	if err != nil {
		logger.Warning("an error occured while starting the database", logger.LoggerOptions{Key: "error", Data: err})
		return
	}

	db := client.Database(os.Getenv("DB_NAME"))
	setUpIndexes(ctx, db)

	logger.Info("connected to mongodb successfully")
}

// Set up the indexes for the database.
// The unique indexes on both hash columns are what make the
// check-then-insert registration sequence atomic. Do not relax them.
func setUpIndexes(ctx context.Context, db *mongo.Database) {
	DocumentRecordModel = db.Collection("DocumentRecords")
	DocumentRecordModel.Indexes().CreateMany(ctx, []mongo.IndexModel{{
		Keys:    bson.D{{Key: "hashedPrimaryID", Value: 1}},
		Options: options.Index().SetUnique(true),
	}, {
		Keys:    bson.D{{Key: "hashedCompareID", Value: 1}},
		Options: options.Index().SetUnique(true),
	}})

	logger.Info("mongodb indexes set up successfully")
}

func CleanUp() {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Error("an error occured while disconnecting from mongodb", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
	}
}
