package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.MaintenanceRepository = (*MaintenanceRepo)(nil)

// Tablas de otros módulos que apuntan a stock_records. Pueden no existir en esta base.
var externalStockLinks = []struct{ table, column string }{
	{"order_items", "stock_record_id"},
	{"settlement_items", "stock_record_id"},
	{"partner_request_items", "stock_record_id"},
}

// Orden de borrado: hijos antes que padres.
var clearTables = []struct {
	name     string
	optional bool
}{
	{"stock_reservations", false},
	{"cycle_counts", true},
	{"pick_lists", true},
	{"repacks", true},
	{"stock_movements", false},
	{"stock_records", false},
}

// MaintenanceRepo reinicio destructivo del inventario.
type MaintenanceRepo struct {
	pool *pgxpool.Pool
}

// NewMaintenanceRepository construye el repositorio; necesita el pool para abrir su propia transacción.
func NewMaintenanceRepository(pool *pgxpool.Pool) *MaintenanceRepo {
	return &MaintenanceRepo{pool: pool}
}

// ClearAll anula enlaces externos y vacía las tablas de stock en una sola transacción.
func (r *MaintenanceRepo) ClearAll(ctx context.Context) (map[string]int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	counts := make(map[string]int64)
	for _, link := range externalStockLinks {
		ok, err := tableExists(ctx, tx, link.table)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		query := fmt.Sprintf(`UPDATE %s SET %s = NULL WHERE %s IS NOT NULL`,
			pgx.Identifier{link.table}.Sanitize(), pgx.Identifier{link.column}.Sanitize(), pgx.Identifier{link.column}.Sanitize())
		tag, err := tx.Exec(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("unlink %s: %w", link.table, err)
		}
		counts[link.table+"."+link.column] = tag.RowsAffected()
	}

	for _, t := range clearTables {
		if t.optional {
			ok, err := tableExists(ctx, tx, t.name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM `+pgx.Identifier{t.name}.Sanitize())
		if err != nil {
			return nil, fmt.Errorf("clear %s: %w", t.name, err)
		}
		counts[t.name] = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return counts, nil
}

func tableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}
