package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/example/catalog/internal/config"
	"github.com/example/catalog/internal/handlers"
	"github.com/example/catalog/internal/middleware"
	"github.com/example/catalog/internal/services"
)

// NewApp builds the fiber application with its middleware stack and all
// routes registered.
func NewApp(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Catalog Backend",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log.WithField("component", "http")),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowedOrigins()}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Output: log.WriterLevel(logrus.DebugLevel),
	}))

	Register(app, db, cfg)
	return app
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	catalogService := services.NewCatalogService(db, telegramService)

	catalogHandler := handlers.NewCatalogHandler(catalogService)
	productHandler := handlers.NewProductHandler(catalogService)

	app.Get("/health", handlers.Health(db))

	api := app.Group("/api/v1")

	categories := api.Group("/categories")
	categories.Get("/", catalogHandler.ListCategories)
	categories.Post("/", catalogHandler.CreateCategory)
	categories.Get("/:id", catalogHandler.GetCategory)
	categories.Put("/:id", catalogHandler.UpdateCategory)
	categories.Patch("/:id", catalogHandler.PatchCategory)
	categories.Delete("/:id", catalogHandler.DeleteCategory)
	categories.Get("/:id/children", catalogHandler.CategoryChildren)
	categories.Get("/:id/descendants", catalogHandler.CategoryDescendants)
	categories.Get("/:id/ancestors", catalogHandler.CategoryAncestors)
	categories.Get("/:id/root", catalogHandler.CategoryRoot)

	brands := api.Group("/brands")
	brands.Get("/", catalogHandler.ListBrands)
	brands.Post("/", catalogHandler.CreateBrand)
	brands.Get("/:id", catalogHandler.GetBrand)
	brands.Put("/:id", catalogHandler.UpdateBrand)
	brands.Patch("/:id", catalogHandler.PatchBrand)
	brands.Delete("/:id", catalogHandler.DeleteBrand)

	products := api.Group("/products")
	productHandler.RegisterProductRoutes(products)
}
