package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.OwnerRepository = (*OwnerRepo)(nil)

// OwnerRepo resuelve propietarios desde las tablas de envíos y socios del módulo de compras,
// si existen en la misma base (shipments.owner_id, partners.owner_id).
type OwnerRepo struct {
	q Querier
}

// NewOwnerRepository construye el resolvedor de propietarios.
func NewOwnerRepository(q Querier) *OwnerRepo {
	return &OwnerRepo{q: q}
}

// OwnerForReceive devuelve el propietario del envío o, si no hay, el del socio. "" si ninguno se conoce.
func (r *OwnerRepo) OwnerForReceive(ctx context.Context, receive *entity.MovementEntry) (string, error) {
	d, ok := receive.Details.(entity.ReceiveDetails)
	if !ok {
		return "", nil
	}
	if d.ShipmentID != "" {
		owner, err := r.lookup(ctx, "shipments", d.ShipmentID)
		if err != nil || owner != "" {
			return owner, err
		}
	}
	if d.PartnerID != "" {
		return r.lookup(ctx, "partners", d.PartnerID)
	}
	return "", nil
}

func (r *OwnerRepo) lookup(ctx context.Context, table, id string) (string, error) {
	exists, err := tableExists(ctx, r.q, table)
	if err != nil || !exists {
		return "", err
	}
	var owner *string
	query := `SELECT owner_id::text FROM ` + pgx.Identifier{table}.Sanitize() + ` WHERE id::text = $1`
	if err := r.q.QueryRow(ctx, query, id).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup %s owner: %w", table, err)
	}
	return derefString(owner), nil
}
