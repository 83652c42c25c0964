package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

const movementColumns = `id, movement_type, product_identity, from_location, to_location, quantity,
	lot_id, owner_id, unit_cost, details, performed_at, performed_by, created_at`

// MovementRepo ledger de movimientos sobre PostgreSQL. Solo inserta.
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el adaptador del ledger.
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

// Append inserta la entrada. El costo unitario de las recepciones va también en columna NUMERIC.
func (r *MovementRepo) Append(ctx context.Context, m *entity.MovementEntry) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	details, err := entity.MarshalDetails(m.Details)
	if err != nil {
		return fmt.Errorf("marshal movement details: %w", err)
	}
	var unitCost *decimal.Decimal
	if d, ok := m.Details.(entity.ReceiveDetails); ok {
		unitCost = d.UnitCost
	}
	query := `
		INSERT INTO stock_movements (id, movement_type, product_identity, from_location, to_location,
			quantity, lot_id, owner_id, unit_cost, details, performed_at, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()), $12)
		RETURNING performed_at, created_at`
	var performedAt any
	if !m.PerformedAt.IsZero() {
		performedAt = m.PerformedAt
	}
	err = r.q.QueryRow(ctx, query,
		m.ID, string(m.MovementType), m.ProductIdentity, nullIfEmpty(m.FromLocation), nullIfEmpty(m.ToLocation),
		m.Quantity, m.LotID, m.OwnerID, unitCost, details, performedAt, m.PerformedBy,
	).Scan(&m.PerformedAt, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

func scanMovement(row pgx.Row) (*entity.MovementEntry, error) {
	var (
		m        entity.MovementEntry
		mt       string
		from, to *string
		unitCost decimal.NullDecimal
		raw      []byte
	)
	err := row.Scan(&m.ID, &mt, &m.ProductIdentity, &from, &to, &m.Quantity,
		&m.LotID, &m.OwnerID, &unitCost, &raw, &m.PerformedAt, &m.PerformedBy, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.MovementType = entity.MovementType(mt)
	m.FromLocation = derefString(from)
	m.ToLocation = derefString(to)
	details, err := entity.UnmarshalDetails(m.MovementType, raw)
	if err != nil {
		return nil, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	if d, ok := details.(entity.ReceiveDetails); ok && unitCost.Valid {
		cost := unitCost.Decimal
		d.UnitCost = &cost
		details = d
	}
	m.Details = details
	return &m, nil
}

// Each recorre el ledger en orden cronológico sin cargarlo entero en memoria.
func (r *MovementRepo) Each(ctx context.Context, fn func(m *entity.MovementEntry) error) error {
	rows, err := r.q.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements ORDER BY performed_at, created_at, id`)
	if err != nil {
		return fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return fmt.Errorf("scan movement: %w", err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list movements: %w", err)
	}
	return nil
}

// ListByProduct devuelve los movimientos de un producto, más recientes primero.
func (r *MovementRepo) ListByProduct(ctx context.Context, productIdentity string, limit int) ([]*entity.MovementEntry, error) {
	query := `
		SELECT ` + movementColumns + `
		FROM stock_movements
		WHERE product_identity = $1
		ORDER BY performed_at DESC, created_at DESC, id
		LIMIT NULLIF($2::int, 0)`
	rows, err := r.q.Query(ctx, query, productIdentity, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements by product: %w", err)
	}
	defer rows.Close()
	var list []*entity.MovementEntry
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
