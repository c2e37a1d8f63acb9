package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/example/catalog/internal/errs"
)

// ErrorHandler renders handler errors as {"error": message}. Catalog errors
// map to client statuses; anything unrecognized is logged and hidden
// behind a 500.
func ErrorHandler(log *logrus.Entry) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			notFound    *errs.NotFoundError
			invalid     *errs.ValidationError
			duplicate   *errs.DuplicateNameError
			hasChildren *errs.HasChildrenError
			cycle       *errs.CycleError
			fiberErr    *fiber.Error
		)

		switch {
		case errors.As(err, &invalid):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "validation failed",
				"fields": invalid.Fields,
			})
		case errors.As(err, &notFound):
			return respond(c, fiber.StatusNotFound, err)
		case errors.As(err, &duplicate), errors.As(err, &hasChildren):
			return respond(c, fiber.StatusConflict, err)
		case errors.As(err, &cycle):
			return respond(c, fiber.StatusBadRequest, err)
		case errors.As(err, &fiberErr):
			return respond(c, fiberErr.Code, err)
		}

		log.WithFields(logrus.Fields{
			"request_id": c.Locals("requestid"),
			"method":     c.Method(),
			"path":       c.Path(),
		}).WithError(err).Error("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

func respond(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
