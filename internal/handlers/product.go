package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/catalog/internal/models"
	"github.com/example/catalog/internal/services"
)

// ProductHandler manages product CRUD. Brand and category are exchanged
// by name and created on demand.
type ProductHandler struct {
	svc *services.CatalogService
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(svc *services.CatalogService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

type productRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description string  `json:"description"`
	IsDigital   bool    `json:"is_digital"`
	Brand       string  `json:"brand" validate:"required,max=100"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
}

type patchProductRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description"`
	IsDigital   *bool   `json:"is_digital"`
	Brand       *string `json:"brand" validate:"omitempty,max=100"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
}

type productResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	IsDigital   bool       `json:"is_digital"`
	Brand       string     `json:"brand"`
	BrandID     uuid.UUID  `json:"brand_id"`
	Category    *string    `json:"category"`
	CategoryID  *uuid.UUID `json:"category_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toProductResponse(p *models.Product) productResponse {
	out := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		IsDigital:   p.IsDigital,
		BrandID:     p.BrandID,
		CategoryID:  p.CategoryID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Brand != nil {
		out.Brand = p.Brand.Name
	}
	if p.Category != nil {
		name := p.Category.Name
		out.Category = &name
	}
	return out
}

func (r productRequest) fields() services.ProductFields {
	return services.ProductFields{Name: r.Name, Description: r.Description, IsDigital: r.IsDigital}
}

// RegisterProductRoutes attaches product routes to the given router.
func (h *ProductHandler) RegisterProductRoutes(router fiber.Router) {
	router.Get("/", h.ListProducts)
	router.Post("/", h.CreateProduct)
	router.Get("/:id", h.GetProduct)
	router.Put("/:id", h.UpdateProduct)
	router.Patch("/:id", h.PatchProduct)
	router.Delete("/:id", h.DeleteProduct)
}

// ListProducts returns every product, oldest first.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	items, err := h.svc.ListProducts(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]productResponse, len(items))
	for i := range items {
		out[i] = toProductResponse(&items[i])
	}
	return c.JSON(out)
}

// GetProduct returns a single product by ID.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	product, err := h.svc.GetProduct(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toProductResponse(product))
}

// CreateProduct persists a new product, creating its brand and category
// when they do not exist yet.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	product, err := h.svc.UpsertProductByNames(c.UserContext(), nil, req.fields(), req.Brand, req.Category)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toProductResponse(product))
}

// UpdateProduct replaces a product. A missing category clears it.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req productRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	product, err := h.svc.UpsertProductByNames(c.UserContext(), &id, req.fields(), req.Brand, req.Category)
	if err != nil {
		return err
	}
	return c.JSON(toProductResponse(product))
}

// PatchProduct updates only the fields present in the body.
func (h *ProductHandler) PatchProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req patchProductRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	product, err := h.svc.PatchProduct(c.UserContext(), id, services.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		IsDigital:   req.IsDigital,
		Brand:       req.Brand,
		Category:    req.Category,
	})
	if err != nil {
		return err
	}
	return c.JSON(toProductResponse(product))
}

// DeleteProduct removes a product by ID.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProduct(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
