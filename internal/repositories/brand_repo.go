package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/catalog/internal/errs"
	"github.com/example/catalog/internal/models"
)

type BrandRepository struct {
	db *gorm.DB
}

func NewBrandRepository(db *gorm.DB) *BrandRepository {
	return &BrandRepository{db: db}
}

func (r *BrandRepository) WithTx(tx *gorm.DB) *BrandRepository {
	return &BrandRepository{db: tx}
}

func (r *BrandRepository) List(ctx context.Context) ([]models.Brand, error) {
	var items []models.Brand
	if err := r.db.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *BrandRepository) Get(ctx context.Context, id uuid.UUID) (*models.Brand, error) {
	var item models.Brand
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("brand", id.String())
		}
		return nil, err
	}
	return &item, nil
}

func (r *BrandRepository) FindByName(ctx context.Context, name string) (*models.Brand, error) {
	var item models.Brand
	if err := r.db.WithContext(ctx).First(&item, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("brand", name)
		}
		return nil, err
	}
	return &item, nil
}

// Create inserts a brand. The insert runs in a savepoint so a lost
// uniqueness race leaves the caller's transaction usable.
func (r *BrandRepository) Create(ctx context.Context, name string) (*models.Brand, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	item := models.Brand{Name: name}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Brand{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &errs.DuplicateNameError{Resource: "brand", Name: name}
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, translateNameError(err, "brand", name)
	}
	return &item, nil
}

// Rename changes the brand's name.
func (r *BrandRepository) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Brand, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	var item *models.Brand
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = r.WithTx(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		if item.Name == name {
			return nil
		}

		var count int64
		if err := tx.Model(&models.Brand{}).Where("name = ? AND id <> ?", name, id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &errs.DuplicateNameError{Resource: "brand", Name: name}
		}

		now := time.Now()
		if err := tx.Model(item).UpdateColumns(map[string]interface{}{
			"name":       name,
			"slug":       models.Slugify(name),
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		item.Name, item.Slug, item.UpdatedAt = name, models.Slugify(name), now
		return nil
	})
	if err != nil {
		return nil, translateNameError(err, "brand", name)
	}
	return item, nil
}

// Delete removes the brand together with every product it owns.
func (r *BrandRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.WithTx(tx).Get(ctx, id); err != nil {
			return err
		}

		res := tx.Where("brand_id = ?", id).Delete(&models.Product{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		return tx.Delete(&models.Brand{}, "id = ?", id).Error
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
