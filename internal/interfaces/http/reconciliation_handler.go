package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/reconciliation"
)

// ReconciliationHandler conciliación y reparaciones (solo admin).
type ReconciliationHandler struct {
	svc *reconciliation.Service
}

func NewReconciliationHandler(svc *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc}
}

// Reconcile godoc
// @Summary      Conciliar ledger y caché
// @Description  Solo lectura. is_reconciled exige que cada (producto, ubicación, lote) coincida.
// @Tags         admin
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  entity.ReconcileReport
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/admin/reconcile [get]
func (h *ReconciliationHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.svc.Reconcile(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(report)
}

// Rebuild godoc
// @Summary      Reconstruir la caché desde el ledger
// @Tags         admin
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  entity.RebuildResult
// @Failure      423  {object}  dto.ErrorResponse
// @Router       /api/admin/rebuild [post]
func (h *ReconciliationHandler) Rebuild(c *fiber.Ctx) error {
	result, err := h.svc.RebuildFromMovements(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// Deduplicate godoc
// @Summary      Fusionar registros duplicados
// @Tags         admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.DedupeRequest  false  "keep_earliest | sum | ledger"
// @Success      200  {object}  entity.DedupeResult
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      423  {object}  dto.ErrorResponse
// @Router       /api/admin/deduplicate [post]
func (h *ReconciliationHandler) Deduplicate(c *fiber.Ctx) error {
	var req dto.DedupeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(c)
		}
	}
	result, err := h.svc.Deduplicate(c.Context(), req.Mode)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// Clear godoc
// @Summary      Reinicio destructivo del inventario
// @Description  Exige confirm=true y LEDGER_ALLOW_CLEAR_ALL habilitado.
// @Tags         admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ClearRequest  true  "Confirmación"
// @Success      200  {object}  dto.ClearResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      423  {object}  dto.ErrorResponse
// @Router       /api/admin/clear [post]
func (h *ReconciliationHandler) Clear(c *fiber.Ctx) error {
	var req dto.ClearRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(c)
		}
	}
	counts, err := h.svc.ClearAll(c.Context(), req.Confirm)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ClearResponse{Deleted: counts})
}
