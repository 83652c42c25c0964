package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/allocation"
	"github.com/jhoicas/stock-ledger/internal/application/dto"
)

// AllocationHandler reservas contra pedidos.
type AllocationHandler struct {
	engine *allocation.Engine
}

func NewAllocationHandler(engine *allocation.Engine) *AllocationHandler {
	return &AllocationHandler{engine: engine}
}

// Reserve godoc
// @Summary      Reservar stock para un pedido
// @Description  Reparte cada línea entre los registros disponibles. Lo que no alcanza se informa en short;
// @Description  las líneas con reserva activa previa se informan en skipped.
// @Tags         allocations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ReserveRequest  true  "Pedido"
// @Success      200  {object}  entity.AllocationResult
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ReserveErrorResponse
// @Router       /api/allocations/reserve [post]
func (h *AllocationHandler) Reserve(c *fiber.Ctx) error {
	var req dto.ReserveRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	result, err := h.engine.Reserve(c.Context(), req.ToDomain())
	if err != nil {
		if result == nil {
			return writeError(c, err)
		}
		status, body := errorBody(err)
		return c.Status(status).JSON(dto.ReserveErrorResponse{ErrorResponse: body, Partial: result})
	}
	return c.JSON(result)
}

// Release godoc
// @Summary      Liberar una reserva activa
// @Tags         allocations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la reserva"
// @Success      200  {object}  dto.ReservationResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/reservations/{id}/release [post]
func (h *AllocationHandler) Release(c *fiber.Ctx) error {
	res, err := h.engine.Release(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromReservation(res))
}

// ReleaseOrderItem godoc
// @Summary      Liberar las reservas activas de una línea de pedido
// @Tags         allocations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la línea de pedido"
// @Success      200  {object}  dto.ListResponse[dto.ReservationResponse]
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/reservations/order-items/{id}/release [post]
func (h *AllocationHandler) ReleaseOrderItem(c *fiber.Ctx) error {
	list, err := h.engine.ReleaseOrderItem(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewList(dto.FromReservations(list)))
}
