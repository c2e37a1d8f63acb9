package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/example/catalog/internal/errs"
	"github.com/example/catalog/internal/logger"
	"github.com/example/catalog/internal/models"
	"github.com/example/catalog/internal/repositories"
)

// ProductFields are the product's own columns, without its references.
type ProductFields struct {
	Name        string
	Description string
	IsDigital   bool
}

// ProductPatch holds a partial product update. Nil fields are left alone;
// an empty Category clears the product's category.
type ProductPatch struct {
	Name        *string
	Description *string
	IsDigital   *bool
	Brand       *string
	Category    *string
}

// created records an implicit creation until its transaction commits.
type created struct {
	kind, name string
}

// CatalogService resolves brand and category names for product writes and
// fronts the stores for everything else.
type CatalogService struct {
	db       *gorm.DB
	tree     *repositories.CategoryTree
	brands   *repositories.BrandRepository
	products *repositories.ProductRepository
	notifier CreationNotifier
	log      *logrus.Entry
}

// NewCatalogService constructs CatalogService. A nil notifier only logs.
func NewCatalogService(db *gorm.DB, notifier CreationNotifier) *CatalogService {
	return &CatalogService{
		db:       db,
		tree:     repositories.NewCategoryTree(db),
		brands:   repositories.NewBrandRepository(db),
		products: repositories.NewProductRepository(db),
		notifier: notifier,
		log:      logger.Component("catalog"),
	}
}

// Tree exposes the category store.
func (s *CatalogService) Tree() *repositories.CategoryTree {
	return s.tree
}

// ResolveOrCreateBrand returns the brand called name, creating it when it
// does not exist yet. The bool reports whether it was created.
func (s *CatalogService) ResolveOrCreateBrand(ctx context.Context, name string) (*models.Brand, bool, error) {
	brand, isNew, err := resolveBrand(ctx, s.brands, name)
	if err != nil {
		return nil, false, err
	}
	if isNew {
		s.announce(ctx, []created{{"brand", brand.Name}}, "requested by name")
	}
	return brand, isNew, nil
}

// ResolveOrCreateCategory returns the category called name, inserting it as
// a new root when it does not exist yet.
func (s *CatalogService) ResolveOrCreateCategory(ctx context.Context, name string) (*models.Category, bool, error) {
	category, isNew, err := resolveCategory(ctx, s.tree, name)
	if err != nil {
		return nil, false, err
	}
	if isNew {
		s.announce(ctx, []created{{"category", category.Name}}, "requested by name")
	}
	return category, isNew, nil
}

// UpsertProductByNames creates the product when id is nil and replaces it
// otherwise. Brand and category are given by name and created when absent;
// a nil or empty categoryName leaves the product without a category.
func (s *CatalogService) UpsertProductByNames(ctx context.Context, id *uuid.UUID, fields ProductFields, brandName string, categoryName *string) (*models.Product, error) {
	var (
		product models.Product
		made    []created
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		brands, tree, products := s.brands.WithTx(tx), s.tree.WithTx(tx), s.products.WithTx(tx)

		brand, isNew, err := resolveBrand(ctx, brands, brandName)
		if err != nil {
			return err
		}
		if isNew {
			made = append(made, created{"brand", brand.Name})
		}

		var categoryID *uuid.UUID
		if categoryName != nil && *categoryName != "" {
			category, isNew, err := resolveCategory(ctx, tree, *categoryName)
			if err != nil {
				return err
			}
			if isNew {
				made = append(made, created{"category", category.Name})
			}
			categoryID = &category.ID
		}

		product = models.Product{
			Name:        fields.Name,
			Description: fields.Description,
			IsDigital:   fields.IsDigital,
			BrandID:     brand.ID,
			CategoryID:  categoryID,
		}
		if id == nil {
			return products.Create(ctx, &product)
		}
		product.ID = *id
		return products.Update(ctx, &product)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, made, fmt.Sprintf("while saving product %q", product.Name))
	return &product, nil
}

// PatchProduct applies the non-nil fields of patch to product id.
func (s *CatalogService) PatchProduct(ctx context.Context, id uuid.UUID, patch ProductPatch) (*models.Product, error) {
	var (
		product *models.Product
		made    []created
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		brands, tree, products := s.brands.WithTx(tx), s.tree.WithTx(tx), s.products.WithTx(tx)

		var err error
		product, err = products.Get(ctx, id)
		if err != nil {
			return err
		}
		product.Brand, product.Category = nil, nil

		if patch.Name != nil {
			product.Name = *patch.Name
		}
		if patch.Description != nil {
			product.Description = *patch.Description
		}
		if patch.IsDigital != nil {
			product.IsDigital = *patch.IsDigital
		}
		if patch.Brand != nil {
			brand, isNew, err := resolveBrand(ctx, brands, *patch.Brand)
			if err != nil {
				return err
			}
			if isNew {
				made = append(made, created{"brand", brand.Name})
			}
			product.BrandID = brand.ID
		}
		if patch.Category != nil {
			if *patch.Category == "" {
				product.CategoryID = nil
			} else {
				category, isNew, err := resolveCategory(ctx, tree, *patch.Category)
				if err != nil {
					return err
				}
				if isNew {
					made = append(made, created{"category", category.Name})
				}
				product.CategoryID = &category.ID
			}
		}

		return products.Update(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, made, fmt.Sprintf("while saving product %q", product.Name))
	return product, nil
}

// CategoryUpdate describes a category edit. Parent is only applied when
// Move is set; a nil Parent then turns the category into a root.
type CategoryUpdate struct {
	Name   *string
	Move   bool
	Parent *uuid.UUID
}

// CreateCategory inserts a category under parentID, or as a root.
func (s *CatalogService) CreateCategory(ctx context.Context, name string, parentID *uuid.UUID) (*models.Category, error) {
	return s.tree.Insert(ctx, name, parentID)
}

// UpdateCategory renames and re-parents a category in one transaction.
func (s *CatalogService) UpdateCategory(ctx context.Context, id uuid.UUID, upd CategoryUpdate) (*models.Category, error) {
	var category *models.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tree := s.tree.WithTx(tx)
		if upd.Name != nil {
			if _, err := tree.Rename(ctx, id, *upd.Name); err != nil {
				return err
			}
		}
		if upd.Move {
			if _, err := tree.Move(ctx, id, upd.Parent); err != nil {
				return err
			}
		}
		var err error
		category, err = tree.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory removes a childless category; its products keep existing
// without one.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return s.tree.Delete(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.products.List(ctx)
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.products.Delete(ctx, id)
}

func (s *CatalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	return s.brands.List(ctx)
}

func (s *CatalogService) GetBrand(ctx context.Context, id uuid.UUID) (*models.Brand, error) {
	return s.brands.Get(ctx, id)
}

func (s *CatalogService) CreateBrand(ctx context.Context, name string) (*models.Brand, error) {
	return s.brands.Create(ctx, name)
}

func (s *CatalogService) RenameBrand(ctx context.Context, id uuid.UUID, name string) (*models.Brand, error) {
	return s.brands.Rename(ctx, id, name)
}

// DeleteBrand removes the brand and the products it owns.
func (s *CatalogService) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	removed, err := s.brands.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"brand_id": id, "products": removed}).Info("brand deleted")
	return nil
}

func (s *CatalogService) announce(ctx context.Context, made []created, reason string) {
	for _, c := range made {
		if s.notifier == nil {
			s.log.WithFields(logrus.Fields{"kind": c.kind, "name": c.name}).Info("catalog record created implicitly")
			continue
		}
		s.notifier.RecordCreated(ctx, c.kind, c.name, reason)
	}
}

func resolveBrand(ctx context.Context, brands *repositories.BrandRepository, name string) (*models.Brand, bool, error) {
	name, err := fieldName("brand", name)
	if err != nil {
		return nil, false, err
	}

	brand, err := brands.FindByName(ctx, name)
	if err == nil {
		return brand, false, nil
	}
	var notFound *errs.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, false, err
	}

	brand, err = brands.Create(ctx, name)
	var dup *errs.DuplicateNameError
	if errors.As(err, &dup) {
		// Lost a race with a concurrent writer; use its row.
		brand, err = brands.FindByName(ctx, name)
		return brand, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return brand, true, nil
}

func resolveCategory(ctx context.Context, tree *repositories.CategoryTree, name string) (*models.Category, bool, error) {
	name, err := fieldName("category", name)
	if err != nil {
		return nil, false, err
	}

	category, err := tree.FindByName(ctx, name)
	if err == nil {
		return category, false, nil
	}
	var notFound *errs.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, false, err
	}

	category, err = tree.Insert(ctx, name, nil)
	var dup *errs.DuplicateNameError
	if errors.As(err, &dup) {
		category, err = tree.FindByName(ctx, name)
		return category, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return category, true, nil
}

// fieldName normalizes a referenced name, reporting failures under field.
func fieldName(field, name string) (string, error) {
	name, err := repositories.NormalizeName(name)
	var invalid *errs.ValidationError
	if errors.As(err, &invalid) {
		return "", errs.Invalid(field, invalid.Fields["name"])
	}
	return name, err
}
