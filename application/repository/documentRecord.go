package repository

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"

	"veridoc.io/application/pipeline"
	"veridoc.io/entities"
	"veridoc.io/infrastructure/database/connection/datastore"
	mongoRepo "veridoc.io/infrastructure/database/repository/mongo"
)

var documentRecordOnce = sync.Once{}

var documentRecordRepository mongoRepo.MongoRepository[entities.DocumentRecord]

func DocumentRecordRepo() *mongoRepo.MongoRepository[entities.DocumentRecord] {
	documentRecordOnce.Do(func() {
		documentRecordRepository = mongoRepo.MongoRepository[entities.DocumentRecord]{Model: datastore.DocumentRecordModel}
	})
	return &documentRecordRepository
}

// documentRecordStore adapts the mongo repository to the pipeline's
// dedup store. Uniqueness is enforced by the collection's unique
// indexes, so Insert is the atomic claim on both identifier digests.
type documentRecordStore struct{}

func DocumentRecordStore() pipeline.RecordStore {
	return documentRecordStore{}
}

func (documentRecordStore) ExistsBy(field string, digest string) (bool, error) {
	count, err := DocumentRecordRepo().CountDocs(map[string]interface{}{
		field: digest,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (documentRecordStore) Insert(ctx context.Context, record entities.DocumentRecord) error {
	_, err := DocumentRecordRepo().CreateOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pipeline.ErrDuplicateRecord
		}
		return err
	}
	return nil
}
