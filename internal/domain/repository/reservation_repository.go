package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ReservationRepository define el puerto de persistencia de reservas.
type ReservationRepository interface {
	// Create inserta la reserva; devuelve domain.ErrDuplicate si ya existe una reserva
	// activa con el mismo (order_item_id, line).
	Create(ctx context.Context, r *entity.Reservation) error
	GetByID(ctx context.Context, id string) (*entity.Reservation, error)
	HasActive(ctx context.Context, orderItemID string) (bool, error)
	ListActiveByOrderItem(ctx context.Context, orderItemID string) ([]*entity.Reservation, error)
	ListActiveByStockRecord(ctx context.Context, stockRecordID string) ([]*entity.Reservation, error)
	// TransitionStatus cambia el estado solo si el actual es from. false = otro proceso ganó.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
	// Repoint mueve las reservas de un registro a otro (deduplicación); devuelve cuántas movió.
	Repoint(ctx context.Context, fromStockRecordID, toStockRecordID string) (int, error)
}
