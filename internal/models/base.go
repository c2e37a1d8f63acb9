package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// BaseModel provides the UUID key and timestamps shared by every table.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUIDs are generated for new records.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Key is the identifier as it appears in URLs and error messages.
func (b *BaseModel) Key() string {
	return b.ID.String()
}

// Slugify derives the URL slug stored next to category and brand names.
func Slugify(name string) string {
	return slug.Make(name)
}
