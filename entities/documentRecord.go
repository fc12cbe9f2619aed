package entities

import (
	"time"

	"veridoc.io/application/utils"
)

// DocumentRecord is the durable row written once per verified identity.
// Both hash columns carry unique indexes so a document can never be
// registered twice.
type DocumentRecord struct {
	HashedPrimaryID string `bson:"hashedPrimaryID" json:"hashedPrimaryID"`
	HashedCompareID string `bson:"hashedCompareID" json:"hashedCompareID"`
	LastName        string `bson:"lastName" json:"lastName"`
	FirstName       string `bson:"firstName" json:"firstName"`

	ID            string     `bson:"_id" json:"id"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
	DeletedAt     *time.Time `bson:"deletedAt" json:"deletedAt"`
	DeletedReason *string    `bson:"deletedReason" json:"deletedReason"`
}

func (model DocumentRecord) ParseModel() any {
	now := time.Now()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
		if model.ID == "" {
			model.ID = utils.GenerateUULDString()
		}
	}
	model.UpdatedAt = now
	return &model
}
