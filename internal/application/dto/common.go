package dto

import "github.com/jhoicas/stock-ledger/internal/domain/entity"

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReserveErrorResponse error de una reserva que falló a mitad de pedido. Partial lleva lo
// que quedó reservado antes del fallo.
type ReserveErrorResponse struct {
	ErrorResponse
	Partial *entity.AllocationResult `json:"partial,omitempty"`
}

// ListResponse envoltorio para listados.
type ListResponse[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// NewList construye el envoltorio; nunca serializa items como null.
func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Total: len(items), Items: items}
}
