package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"veridoc.io/infrastructure/logger"
)

func (repo *MongoRepository[T]) createCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

// CreateOne inserts a single document. Unique index violations are
// returned to the caller unwrapped so it can distinguish duplicates
// from infrastructure failures with mongo.IsDuplicateKeyError.
func (repo *MongoRepository[T]) CreateOne(ctx context.Context, payload T) (*T, error) {
	parsed := payload.ParseModel().(*T)
	c, cancel := repo.createCtx()
	defer cancel()
	if ctx != nil {
		c = ctx
	}
	_, err := repo.Model.InsertOne(c, parsed)
	if err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			logger.Error("an error occured while running CreateOne", logger.LoggerOptions{
				Key:  "error",
				Data: err,
			})
		}
		return nil, err
	}
	return parsed, nil
}

func (repo *MongoRepository[T]) FindOneByFilter(filter map[string]interface{}, opts ...*options.FindOneOptions) (*T, error) {
	c, cancel := repo.createCtx()
	defer cancel()
	var result T
	err := repo.Model.FindOne(c, parseFilter(filter), opts...).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		logger.Error("an error occured while running FindOneByFilter", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return nil, err
	}
	return &result, nil
}

func (repo *MongoRepository[T]) CountDocs(filter map[string]interface{}) (int64, error) {
	c, cancel := repo.createCtx()
	defer cancel()
	count, err := repo.Model.CountDocuments(c, parseFilter(filter))
	if err != nil {
		logger.Error("an error occured while running CountDocs", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return 0, err
	}
	return count, nil
}

func (repo *MongoRepository[T]) DeleteOne(ctx context.Context, filter map[string]interface{}) (int64, error) {
	c, cancel := repo.createCtx()
	defer cancel()
	if ctx != nil {
		c = ctx
	}
	result, err := repo.Model.DeleteOne(c, parseFilter(filter))
	if err != nil {
		logger.Error("an error occured while running DeleteOne", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return 0, err
	}
	return result.DeletedCount, nil
}

func parseFilter(filter map[string]interface{}) bson.M {
	parsed := bson.M{}
	for key, value := range filter {
		parsed[key] = value
	}
	return parsed
}
