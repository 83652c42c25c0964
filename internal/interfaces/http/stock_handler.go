package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/stock"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockHandler consultas de disponible y registro de movimientos.
type StockHandler struct {
	svc *stock.Service
}

func NewStockHandler(svc *stock.Service) *StockHandler {
	return &StockHandler{svc: svc}
}

// GetAvailable godoc
// @Summary      Stock disponible por producto
// @Description  Registros con disponible > 0, mayor disponible primero. Un LWIN7/LWIN11 se busca por prefijo.
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        product_identity  query  string  true   "LWIN7, LWIN11 o LWIN18"
// @Param        location_id       query  string  false  "Ubicación"
// @Param        owner_id          query  string  false  "Propietario"
// @Param        lot_id            query  string  false  "Lote / envío"
// @Param        prefix            query  bool    false  "Buscar por prefijo"
// @Param        limit             query  int     false  "Máximo de registros (0 = sin límite)"
// @Success      200  {object}  dto.ListResponse[dto.StockRecordResponse]
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/stock/available [get]
func (h *StockHandler) GetAvailable(c *fiber.Ctx) error {
	filter := entity.StockFilter{
		LocationID: c.Query("location_id"),
		OwnerID:    c.Query("owner_id"),
		LotID:      c.Query("lot_id"),
		Prefix:     c.QueryBool("prefix", false),
		Limit:      c.QueryInt("limit", 0),
	}
	records, err := h.svc.GetAvailable(c.Context(), c.Query("product_identity"), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewList(dto.FromStockRecords(records)))
}

// History godoc
// @Summary      Historial de movimientos de un producto
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        product_identity  query  string  true   "Código LWIN"
// @Param        limit             query  int     false  "Máximo de movimientos (por defecto 50, máximo 500)"
// @Success      200  {object}  dto.ListResponse[dto.MovementResponse]
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/stock/movements [get]
func (h *StockHandler) History(c *fiber.Ctx) error {
	list, err := h.svc.History(c.Context(), c.Query("product_identity"), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.NewList(dto.FromMovements(list)))
}

// RecordMovement godoc
// @Summary      Registrar movimiento
// @Description  Agrega la entrada al ledger y aplica su efecto sobre la caché en una sola transacción.
// @Tags         stock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.MovementRequest  true  "Movimiento"
// @Success      201  {object}  dto.MovementResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/stock/movements [post]
func (h *StockHandler) RecordMovement(c *fiber.Ctx) error {
	var req dto.MovementRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	in, err := req.ToInput(GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	entry, err := h.svc.ApplyMovement(c.Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromMovement(entry))
}

// RecordBatch godoc
// @Summary      Registrar varios movimientos en una transacción
// @Description  Todos o ninguno (p. ej. repack_out + repack_in).
// @Tags         stock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.BatchMovementRequest  true  "Movimientos"
// @Success      201  {object}  dto.ListResponse[dto.MovementResponse]
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/stock/movements/batch [post]
func (h *StockHandler) RecordBatch(c *fiber.Ctx) error {
	var req dto.BatchMovementRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	userID := GetUserID(c)
	inputs := make([]stock.MovementInput, 0, len(req.Movements))
	for _, m := range req.Movements {
		in, err := m.ToInput(userID)
		if err != nil {
			return writeError(c, err)
		}
		inputs = append(inputs, in)
	}
	entries, err := h.svc.ApplyBatch(c.Context(), inputs)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewList(dto.FromMovements(entries)))
}
