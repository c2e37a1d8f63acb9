package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/catalog/internal/services"
)

// CatalogHandler manages categories and brands.
type CatalogHandler struct {
	svc *services.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(svc *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

type categoryRequest struct {
	Name     string     `json:"name" validate:"required,max=100"`
	ParentID optionalID `json:"parent_id" validate:"-"`
}

type patchCategoryRequest struct {
	Name     *string    `json:"name" validate:"omitempty,max=100"`
	ParentID optionalID `json:"parent_id" validate:"-"`
}

type brandRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type patchBrandRequest struct {
	Name *string `json:"name" validate:"omitempty,max=100"`
}

// ListCategories returns the whole forest in tree order.
func (h *CatalogHandler) ListCategories(c *fiber.Ctx) error {
	items, err := h.svc.Tree().List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(items)
}

// GetCategory returns a single category by ID.
func (h *CatalogHandler) GetCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	category, err := h.svc.Tree().Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(category)
}

// CreateCategory inserts a category, under parent_id when given.
func (h *CatalogHandler) CreateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	category, err := h.svc.CreateCategory(c.UserContext(), req.Name, req.ParentID.Value)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

// UpdateCategory renames a category and places it under parent_id, or at
// the top level when parent_id is absent or null.
func (h *CatalogHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req categoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	category, err := h.svc.UpdateCategory(c.UserContext(), id, services.CategoryUpdate{
		Name:   &req.Name,
		Move:   true,
		Parent: req.ParentID.Value,
	})
	if err != nil {
		return err
	}
	return c.JSON(category)
}

// PatchCategory applies the fields present in the body.
func (h *CatalogHandler) PatchCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req patchCategoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	category, err := h.svc.UpdateCategory(c.UserContext(), id, services.CategoryUpdate{
		Name:   req.Name,
		Move:   req.ParentID.Set,
		Parent: req.ParentID.Value,
	})
	if err != nil {
		return err
	}
	return c.JSON(category)
}

// DeleteCategory removes a category without children.
func (h *CatalogHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCategory(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CatalogHandler) CategoryChildren(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Tree().Children(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *CatalogHandler) CategoryDescendants(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Tree().DescendantsOf(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(items)
}

// CategoryAncestors lists ancestors nearest first.
func (h *CatalogHandler) CategoryAncestors(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Tree().AncestorsOf(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *CatalogHandler) CategoryRoot(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	root, err := h.svc.Tree().RootOf(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(root)
}

func (h *CatalogHandler) ListBrands(c *fiber.Ctx) error {
	items, err := h.svc.ListBrands(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *CatalogHandler) GetBrand(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	brand, err := h.svc.GetBrand(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(brand)
}

func (h *CatalogHandler) CreateBrand(c *fiber.Ctx) error {
	var req brandRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	brand, err := h.svc.CreateBrand(c.UserContext(), req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(brand)
}

func (h *CatalogHandler) UpdateBrand(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req brandRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	brand, err := h.svc.RenameBrand(c.UserContext(), id, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(brand)
}

// PatchBrand renames the brand when a name is given; a brand has no other
// editable fields.
func (h *CatalogHandler) PatchBrand(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req patchBrandRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Name == nil {
		brand, err := h.svc.GetBrand(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(brand)
	}
	brand, err := h.svc.RenameBrand(c.UserContext(), id, *req.Name)
	if err != nil {
		return err
	}
	return c.JSON(brand)
}

// DeleteBrand removes a brand and all of its products.
func (h *CatalogHandler) DeleteBrand(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBrand(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
