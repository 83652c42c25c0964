package allocation

import (
	"context"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Release pasa una reserva activa a released y devuelve su cantidad al disponible.
// Quién decide liberar (cancelación, vencimiento) es el flujo de pedidos.
func (e *Engine) Release(ctx context.Context, reservationID string) (*entity.Reservation, error) {
	if reservationID == "" {
		return nil, fmt.Errorf("%w: reservation_id requerido", domain.ErrInvalidInput)
	}
	var released *entity.Reservation
	err := e.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		stockRepo repository.StockRecordRepository,
		resRepo repository.ReservationRepository,
	) error {
		res, err := resRepo.GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("reserva %s: %w", reservationID, domain.ErrNotFound)
		}
		if err := releaseOne(ctx, stockRepo, resRepo, res); err != nil {
			return err
		}
		released = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("reservation_id", released.ID).Int("quantity", released.Quantity).Msg("reserva liberada")
	return released, nil
}

// ReleaseOrderItem libera todos los tramos activos de una línea de pedido. Sin reservas activas no hace nada.
func (e *Engine) ReleaseOrderItem(ctx context.Context, orderItemID string) ([]*entity.Reservation, error) {
	if orderItemID == "" {
		return nil, fmt.Errorf("%w: order_item_id requerido", domain.ErrInvalidInput)
	}
	var released []*entity.Reservation
	err := e.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		stockRepo repository.StockRecordRepository,
		resRepo repository.ReservationRepository,
	) error {
		list, err := resRepo.ListActiveByOrderItem(ctx, orderItemID)
		if err != nil {
			return err
		}
		for _, res := range list {
			if err := releaseOne(ctx, stockRepo, resRepo, res); err != nil {
				return err
			}
		}
		released = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	if released == nil {
		released = []*entity.Reservation{}
	}
	e.log.Info().Str("order_item_id", orderItemID).Int("reservations", len(released)).Msg("línea de pedido liberada")
	return released, nil
}

func releaseOne(
	ctx context.Context,
	stockRepo repository.StockRecordRepository,
	resRepo repository.ReservationRepository,
	res *entity.Reservation,
) error {
	if !entity.CanTransition(res.Status, entity.ReservationReleased) {
		return fmt.Errorf("reserva %s en estado %s: %w", res.ID, res.Status, domain.ErrConflict)
	}
	ok, err := resRepo.TransitionStatus(ctx, res.ID, entity.ReservationActive, entity.ReservationReleased)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reserva %s ya no está activa: %w", res.ID, domain.ErrConflict)
	}
	ok, err = stockRepo.ReleaseReserved(ctx, res.StockRecordID, res.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("registro %s con reservado menor a %d: %w", res.StockRecordID, res.Quantity, domain.ErrConflict)
	}
	res.Status = entity.ReservationReleased
	return nil
}
