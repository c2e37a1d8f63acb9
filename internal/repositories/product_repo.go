package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/catalog/internal/errs"
	"github.com/example/catalog/internal/models"
)

// productColumns are the columns a product write may touch.
var productColumns = []string{"name", "description", "is_digital", "brand_id", "category_id", "updated_at"}

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) WithTx(tx *gorm.DB) *ProductRepository {
	return &ProductRepository{db: tx}
}

// List returns all products with brand and category loaded, oldest first.
func (r *ProductRepository) List(ctx context.Context) ([]models.Product, error) {
	var items []models.Product
	if err := r.db.WithContext(ctx).Preload("Brand").Preload("Category").
		Order("created_at").Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ProductRepository) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var item models.Product
	if err := r.db.WithContext(ctx).Preload("Brand").Preload("Category").
		First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("product", id.String())
		}
		return nil, err
	}
	return &item, nil
}

// CountByBrand reports how many products reference the brand.
func (r *ProductRepository) CountByBrand(ctx context.Context, brandID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).Where("brand_id = ?", brandID).Count(&count).Error
	return count, err
}

// Create inserts p after checking its references.
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	if err := normalizeProduct(p); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkProductRefs(tx, p); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
			return err
		}
		return reload(tx, p)
	})
}

// Update overwrites every writable column of the product p.ID.
func (r *ProductRepository) Update(ctx context.Context, p *models.Product) error {
	if err := normalizeProduct(p); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Product
		if err := tx.First(&existing, "id = ?", p.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("product", p.ID.String())
			}
			return err
		}
		if err := checkProductRefs(tx, p); err != nil {
			return err
		}
		if err := tx.Model(&existing).Select(productColumns).Omit(clause.Associations).
			Updates(p).Error; err != nil {
			return err
		}
		return reload(tx, p)
	})
}

func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("product", id.String())
	}
	return nil
}

func normalizeProduct(p *models.Product) error {
	name, err := NormalizeName(p.Name)
	if err != nil {
		return err
	}
	p.Name = name
	p.Description = strings.TrimSpace(p.Description)
	if p.BrandID == uuid.Nil {
		return errs.Invalid("brand", "required")
	}
	return nil
}

// checkProductRefs enforces the foreign keys at write time so a dangling
// reference is reported as a missing record, whatever the driver.
func checkProductRefs(tx *gorm.DB, p *models.Product) error {
	var count int64
	if err := tx.Model(&models.Brand{}).Where("id = ?", p.BrandID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errs.NotFound("brand", p.BrandID.String())
	}
	if p.CategoryID == nil {
		return nil
	}
	if err := tx.Model(&models.Category{}).Where("id = ?", *p.CategoryID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errs.NotFound("category", p.CategoryID.String())
	}
	return nil
}

func reload(tx *gorm.DB, p *models.Product) error {
	p.Brand, p.Category = nil, nil
	return tx.Preload("Brand").Preload("Category").First(p, "id = ?", p.ID).Error
}
