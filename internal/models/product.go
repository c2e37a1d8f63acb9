package models

import "github.com/google/uuid"

type Product struct {
	BaseModel
	Name        string     `gorm:"size:100;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	IsDigital   bool       `gorm:"not null;default:false" json:"is_digital"`
	BrandID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"brand_id"`
	Brand       *Brand     `gorm:"constraint:OnDelete:CASCADE" json:"brand,omitempty"`
	CategoryID  *uuid.UUID `gorm:"type:uuid;index" json:"category_id"`
	Category    *Category  `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
}

func (p *Product) String() string {
	return p.Name
}
