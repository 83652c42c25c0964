package dto

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/allocation"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ReserveItemRequest línea de pedido a reservar.
type ReserveItemRequest struct {
	OrderItemID     string `json:"order_item_id"`
	ProductIdentity string `json:"product_identity"`
	ProductName     string `json:"product_name,omitempty"`
	Quantity        int    `json:"quantity"`
}

// ReserveRequest body para POST /api/allocations/reserve.
type ReserveRequest struct {
	OrderType   string               `json:"order_type"`
	OrderID     string               `json:"order_id"`
	OrderNumber string               `json:"order_number,omitempty"`
	Items       []ReserveItemRequest `json:"items"`
}

func (r ReserveRequest) ToDomain() allocation.ReserveRequest {
	req := allocation.ReserveRequest{
		OrderType:   r.OrderType,
		OrderID:     r.OrderID,
		OrderNumber: r.OrderNumber,
		Items:       make([]allocation.ReserveItem, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		req.Items = append(req.Items, allocation.ReserveItem{
			OrderItemID:       it.OrderItemID,
			ProductIdentity:   it.ProductIdentity,
			ProductName:       it.ProductName,
			QuantityRequested: it.Quantity,
		})
	}
	return req
}

// ReservationResponse reserva persistida.
type ReservationResponse struct {
	ID            string    `json:"id"`
	StockRecordID string    `json:"stock_record_id"`
	OrderType     string    `json:"order_type"`
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number,omitempty"`
	OrderItemID   string    `json:"order_item_id"`
	Line          int       `json:"line"`
	Quantity      int       `json:"quantity"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func FromReservation(r *entity.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:            r.ID,
		StockRecordID: r.StockRecordID,
		OrderType:     r.OrderType,
		OrderID:       r.OrderID,
		OrderNumber:   r.OrderNumber,
		OrderItemID:   r.OrderItemID,
		Line:          r.Line,
		Quantity:      r.Quantity,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func FromReservations(list []*entity.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(list))
	for _, r := range list {
		out = append(out, FromReservation(r))
	}
	return out
}
