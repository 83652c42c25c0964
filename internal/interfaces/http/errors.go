package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain"
)

// errorStatus traduce errores de dominio a (status, código). El orden importa: el primero que coincide gana.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION"},
	{domain.ErrConfirmationRequired, fiber.StatusBadRequest, "CONFIRMATION_REQUIRED"},
	{domain.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrInsufficientStock, fiber.StatusConflict, "INSUFFICIENT_STOCK"},
	{domain.ErrDuplicate, fiber.StatusConflict, "DUPLICATE"},
	{domain.ErrConflict, fiber.StatusConflict, "CONFLICT"},
	{domain.ErrRepairInProgress, fiber.StatusLocked, "REPAIR_IN_PROGRESS"},
}

// errorBody resuelve status y cuerpo para err; sin coincidencia es 500 INTERNAL.
func errorBody(err error) (int, dto.ErrorResponse) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status, dto.ErrorResponse{Code: m.code, Message: err.Error()}
		}
	}
	return fiber.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()}
}

func writeError(c *fiber.Ctx, err error) error {
	status, body := errorBody(err)
	return c.Status(status).JSON(body)
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
