package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/allocation"
	"github.com/jhoicas/stock-ledger/internal/application/reconciliation"
	"github.com/jhoicas/stock-ledger/internal/application/stock"
	"github.com/jhoicas/stock-ledger/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Stock          *stock.Service
	Allocation     *allocation.Engine
	Reconciliation *reconciliation.Service
	JWTSecret      string
}

// Router registra las rutas de la API. Todas requieren Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	// Operación diaria (admin u operador)
	ops := api.Group("/", RequireRole(jwt.RoleAdmin, jwt.RoleOperator))

	stockHandler := NewStockHandler(deps.Stock)
	ops.Get("/stock/available", stockHandler.GetAvailable)
	ops.Get("/stock/movements", stockHandler.History)
	ops.Post("/stock/movements", stockHandler.RecordMovement)
	ops.Post("/stock/movements/batch", stockHandler.RecordBatch)

	allocationHandler := NewAllocationHandler(deps.Allocation)
	ops.Post("/allocations/reserve", allocationHandler.Reserve)
	ops.Post("/reservations/order-items/:id/release", allocationHandler.ReleaseOrderItem)
	ops.Post("/reservations/:id/release", allocationHandler.Release)

	// Reparaciones (solo admin)
	admin := api.Group("/admin", RequireRole(jwt.RoleAdmin))
	reconHandler := NewReconciliationHandler(deps.Reconciliation)
	admin.Get("/reconcile", reconHandler.Reconcile)
	admin.Post("/rebuild", reconHandler.Rebuild)
	admin.Post("/deduplicate", reconHandler.Deduplicate)
	admin.Post("/clear", reconHandler.Clear)
}
