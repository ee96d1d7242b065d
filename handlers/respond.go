package handlers

import (
	"errors"

	"game-arena-system/services"

	"github.com/gofiber/fiber/v2"
)

// fail maps the service error taxonomy onto HTTP statuses. Anything the
// taxonomy does not name is a 500.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrBattleAlreadyResolved),
		errors.Is(err, services.ErrInsufficientParticipants):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrAlreadyExists):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrCapacityExceeded):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidParticipants),
		errors.Is(err, services.ErrNotAParticipant):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
