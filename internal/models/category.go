package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category is a node of the category forest. Lft, Rght, TreeID and Level
// are the nested-set bounds maintained by the tree store; they are never
// written by handlers.
type Category struct {
	BaseModel
	Name     string     `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Slug     string     `gorm:"size:120;index" json:"slug"`
	ParentID *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"`
	Lft      int        `gorm:"column:lft;not null;index:idx_categories_bounds,priority:2" json:"-"`
	Rght     int        `gorm:"column:rght;not null" json:"-"`
	TreeID   int        `gorm:"not null;index:idx_categories_bounds,priority:1" json:"-"`
	Level    int        `gorm:"not null" json:"level"`
	Children []Category `gorm:"foreignKey:ParentID;constraint:OnDelete:RESTRICT" json:"-"`
}

// IsRoot reports whether the node has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// IsLeaf reports whether the node has no descendants.
func (c *Category) IsLeaf() bool {
	return c.Rght-c.Lft == 1
}

// Contains reports whether other lies strictly inside c's subtree.
func (c *Category) Contains(other *Category) bool {
	return c.TreeID == other.TreeID && c.Lft < other.Lft && other.Rght < c.Rght
}

// Width is the number of bound slots the subtree rooted at c occupies.
func (c *Category) Width() int {
	return c.Rght - c.Lft + 1
}

func (c *Category) String() string {
	return c.Name
}

// BeforeSave keeps the slug in step with the name.
func (c *Category) BeforeSave(tx *gorm.DB) error {
	c.Slug = Slugify(c.Name)
	return nil
}
