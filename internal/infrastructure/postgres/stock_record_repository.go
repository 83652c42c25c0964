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

var _ repository.StockRecordRepository = (*StockRecordRepo)(nil)

const stockRecordColumns = `id, product_identity, location_id, owner_id, lot_id,
	quantity_total, quantity_reserved, quantity_available, created_at, updated_at`

// StockRecordRepo implementación de StockRecordRepository sobre PostgreSQL (usable con pool o tx).
type StockRecordRepo struct {
	q Querier
}

// NewStockRecordRepository construye el adaptador de stock. Pasar pool o tx (Querier).
func NewStockRecordRepository(q Querier) *StockRecordRepo {
	return &StockRecordRepo{q: q}
}

func scanStockRecord(row pgx.Row) (*entity.StockRecord, error) {
	var s entity.StockRecord
	err := row.Scan(&s.ID, &s.ProductIdentity, &s.LocationID, &s.OwnerID, &s.LotID,
		&s.QuantityTotal, &s.QuantityReserved, &s.QuantityAvailable, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StockRecordRepo) list(ctx context.Context, query string, args ...any) ([]*entity.StockRecord, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*entity.StockRecord
	for rows.Next() {
		s, err := scanStockRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetByID obtiene un registro por id; nil si no existe.
func (r *StockRecordRepo) GetByID(ctx context.Context, id string) (*entity.StockRecord, error) {
	query := `SELECT ` + stockRecordColumns + ` FROM stock_records WHERE id = $1`
	s, err := scanStockRecord(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock record: %w", err)
	}
	return s, nil
}

// GetByIDForUpdate obtiene el registro y bloquea la fila (SELECT FOR UPDATE); nil si no existe.
func (r *StockRecordRepo) GetByIDForUpdate(ctx context.Context, id string) (*entity.StockRecord, error) {
	query := `SELECT ` + stockRecordColumns + ` FROM stock_records WHERE id = $1 FOR UPDATE`
	s, err := scanStockRecord(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock record for update: %w", err)
	}
	return s, nil
}

// LockKey toma un advisory lock de transacción sobre la clave; se libera con Commit/Rollback.
func (r *StockRecordRepo) LockKey(ctx context.Context, key entity.StockKey) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String())
	if err != nil {
		return fmt.Errorf("lock stock key: %w", err)
	}
	return nil
}

// FindByKeyForUpdate obtiene el registro más antiguo de la clave y bloquea la fila (SELECT FOR UPDATE).
func (r *StockRecordRepo) FindByKeyForUpdate(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records
		WHERE product_identity = $1 AND location_id = $2 AND lot_id = $3
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE`
	s, err := scanStockRecord(r.q.QueryRow(ctx, query, key.ProductIdentity, key.LocationID, key.LotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock record for update: %w", err)
	}
	return s, nil
}

func (r *StockRecordRepo) ListByKey(ctx context.Context, key entity.StockKey) ([]*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records
		WHERE product_identity = $1 AND location_id = $2 AND lot_id = $3
		ORDER BY created_at, id`
	list, err := r.list(ctx, query, key.ProductIdentity, key.LocationID, key.LotID)
	if err != nil {
		return nil, fmt.Errorf("list stock records by key: %w", err)
	}
	return list, nil
}

// ListByKeyForUpdate lista los registros de la clave y los bloquea en orden de creación.
func (r *StockRecordRepo) ListByKeyForUpdate(ctx context.Context, key entity.StockKey) ([]*entity.StockRecord, error) {
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records
		WHERE product_identity = $1 AND location_id = $2 AND lot_id = $3
		ORDER BY created_at, id
		FOR UPDATE`
	list, err := r.list(ctx, query, key.ProductIdentity, key.LocationID, key.LotID)
	if err != nil {
		return nil, fmt.Errorf("list stock records by key for update: %w", err)
	}
	return list, nil
}

// ListAvailable lista registros con disponible > 0. Con Prefix usa LIKE sobre el índice text_pattern_ops.
func (r *StockRecordRepo) ListAvailable(ctx context.Context, f entity.StockFilter) ([]*entity.StockRecord, error) {
	identityCond := `product_identity = $1`
	if f.Prefix {
		identityCond = `product_identity LIKE $1 || '%'`
	}
	query := `
		SELECT ` + stockRecordColumns + `
		FROM stock_records
		WHERE ` + identityCond + `
		  AND quantity_available > 0
		  AND ($2 = '' OR location_id = $2)
		  AND ($3 = '' OR owner_id = $3)
		  AND ($4 = '' OR lot_id = $4)
		ORDER BY quantity_available DESC, created_at ASC, id
		LIMIT NULLIF($5::int, 0)`
	list, err := r.list(ctx, query, f.ProductIdentity, f.LocationID, f.OwnerID, f.LotID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list available stock: %w", err)
	}
	return list, nil
}

func (r *StockRecordRepo) ListAll(ctx context.Context) ([]*entity.StockRecord, error) {
	query := `SELECT ` + stockRecordColumns + ` FROM stock_records ORDER BY created_at, id`
	list, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stock records: %w", err)
	}
	return list, nil
}

// Create inserta el registro; asigna id si viene vacío.
func (r *StockRecordRepo) Create(ctx context.Context, rec *entity.StockRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO stock_records (id, product_identity, location_id, owner_id, lot_id,
			quantity_total, quantity_reserved, quantity_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp(), clock_timestamp())
		RETURNING created_at, updated_at`
	err := r.q.QueryRow(ctx, query,
		rec.ID, rec.ProductIdentity, rec.LocationID, rec.OwnerID, rec.LotID,
		rec.QuantityTotal, rec.QuantityReserved, rec.QuantityAvailable,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create stock record: %w", domain.ErrDuplicate)
		}
		if isCheckViolation(err) {
			return fmt.Errorf("create stock record %s: %w", rec.Key(), domain.ErrInvalidInput)
		}
		return fmt.Errorf("create stock record: %w", err)
	}
	return nil
}

// UpdateQuantities persiste total/reservado/disponible del registro.
func (r *StockRecordRepo) UpdateQuantities(ctx context.Context, rec *entity.StockRecord) error {
	query := `
		UPDATE stock_records
		SET quantity_total = $2, quantity_reserved = $3, quantity_available = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	err := r.q.QueryRow(ctx, query, rec.ID, rec.QuantityTotal, rec.QuantityReserved, rec.QuantityAvailable).
		Scan(&rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update stock record %s: %w", rec.ID, domain.ErrNotFound)
		}
		if isCheckViolation(err) {
			return fmt.Errorf("update stock record %s: %w", rec.ID, domain.ErrInsufficientStock)
		}
		return fmt.Errorf("update stock record: %w", err)
	}
	return nil
}

// TryReserve es la actualización condicional del carve-out: 0 filas = carrera perdida.
func (r *StockRecordRepo) TryReserve(ctx context.Context, id string, qty int) (bool, error) {
	query := `
		UPDATE stock_records
		SET quantity_reserved = quantity_reserved + $2,
		    quantity_available = quantity_available - $2,
		    updated_at = now()
		WHERE id = $1 AND $2 > 0 AND quantity_available >= $2`
	tag, err := r.q.Exec(ctx, query, id, qty)
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *StockRecordRepo) ReleaseReserved(ctx context.Context, id string, qty int) (bool, error) {
	query := `
		UPDATE stock_records
		SET quantity_reserved = quantity_reserved - $2,
		    quantity_available = quantity_available + $2,
		    updated_at = now()
		WHERE id = $1 AND $2 > 0 AND quantity_reserved >= $2`
	tag, err := r.q.Exec(ctx, query, id, qty)
	if err != nil {
		return false, fmt.Errorf("release reserved stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *StockRecordRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM stock_records WHERE id = $1`, id); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("delete stock record %s: %w", id, domain.ErrConflict)
		}
		return fmt.Errorf("delete stock record: %w", err)
	}
	return nil
}
