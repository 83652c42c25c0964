package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.ReservationRepository = (*ReservationRepo)(nil)

const reservationColumns = `id, stock_record_id, order_type, order_id, order_number, order_item_id,
	line_no, quantity, status, created_at, updated_at`

// ReservationRepo implementación de ReservationRepository sobre PostgreSQL.
type ReservationRepo struct {
	q Querier
}

// NewReservationRepository construye el adaptador de reservas.
func NewReservationRepository(q Querier) *ReservationRepo {
	return &ReservationRepo{q: q}
}

func scanReservation(row pgx.Row) (*entity.Reservation, error) {
	var r entity.Reservation
	err := row.Scan(&r.ID, &r.StockRecordID, &r.OrderType, &r.OrderID, &r.OrderNumber, &r.OrderItemID,
		&r.Line, &r.Quantity, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserta la reserva. El índice único parcial (order_item_id, line_no) WHERE status='active'
// convierte un reintento concurrente en domain.ErrDuplicate.
func (r *ReservationRepo) Create(ctx context.Context, res *entity.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	query := `
		INSERT INTO stock_reservations (id, stock_record_id, order_type, order_id, order_number,
			order_item_id, line_no, quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	err := r.q.QueryRow(ctx, query,
		res.ID, res.StockRecordID, res.OrderType, res.OrderID, res.OrderNumber,
		res.OrderItemID, res.Line, res.Quantity, res.Status,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create reservation: %w", domain.ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("create reservation: stock record %s: %w", res.StockRecordID, domain.ErrNotFound)
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = $1`
	res, err := scanReservation(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepo) HasActive(ctx context.Context, orderItemID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_reservations WHERE order_item_id = $1 AND status = 'active')`,
		orderItemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active reservation: %w", err)
	}
	return exists, nil
}

func (r *ReservationRepo) listActive(ctx context.Context, column, value string) ([]*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM stock_reservations
		WHERE ` + column + ` = $1 AND status = 'active'
		ORDER BY line_no, created_at`
	rows, err := r.q.Query(ctx, query, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*entity.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

func (r *ReservationRepo) ListActiveByOrderItem(ctx context.Context, orderItemID string) ([]*entity.Reservation, error) {
	list, err := r.listActive(ctx, "order_item_id", orderItemID)
	if err != nil {
		return nil, fmt.Errorf("list reservations by order item: %w", err)
	}
	return list, nil
}

func (r *ReservationRepo) ListActiveByStockRecord(ctx context.Context, stockRecordID string) ([]*entity.Reservation, error) {
	list, err := r.listActive(ctx, "stock_record_id", stockRecordID)
	if err != nil {
		return nil, fmt.Errorf("list reservations by stock record: %w", err)
	}
	return list, nil
}

// TransitionStatus cambia el estado con guarda sobre el estado actual (CAS).
func (r *ReservationRepo) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE stock_reservations SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReservationRepo) Repoint(ctx context.Context, fromStockRecordID, toStockRecordID string) (int, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE stock_reservations SET stock_record_id = $2, updated_at = now() WHERE stock_record_id = $1`,
		fromStockRecordID, toStockRecordID)
	if err != nil {
		return 0, fmt.Errorf("repoint reservations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
