package models

import "gorm.io/gorm"

// Brand owns its products: deleting a brand deletes them.
type Brand struct {
	BaseModel
	Name string `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Slug string `gorm:"size:120;index" json:"slug"`
}

func (b *Brand) String() string {
	return b.Name
}

// BeforeSave keeps the slug in step with the name.
func (b *Brand) BeforeSave(tx *gorm.DB) error {
	b.Slug = Slugify(b.Name)
	return nil
}
