package entity

import "time"

// Estados de una reserva. Ninguna transición vuelve a active.
const (
	ReservationActive   = "active"
	ReservationReleased = "released"
	ReservationConsumed = "consumed"
)

// Reservation aparta cantidad de un StockRecord para una línea de pedido externa.
// Line es el índice (1..n) del tramo cuando la línea se reparte entre varios lotes.
type Reservation struct {
	ID            string
	StockRecordID string
	OrderType     string
	OrderID       string
	OrderNumber   string
	OrderItemID   string
	Line          int
	Quantity      int
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanTransition indica si el cambio de estado es válido (active -> released|consumed).
func CanTransition(from, to string) bool {
	return from == ReservationActive && (to == ReservationReleased || to == ReservationConsumed)
}
