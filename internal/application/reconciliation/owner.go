package reconciliation

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// OwnerResolver decide el propietario de un registro reconstruido a partir de la recepción
// más antigua de su (producto, lote); receive puede ser nil.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, key entity.StockKey, receive *entity.MovementEntry) (string, error)
}

// LedgerOwnerResolver consulta el envío/socio de la recepción, luego el propietario registrado
// en la propia entrada y por último el propietario por defecto.
type LedgerOwnerResolver struct {
	owners       repository.OwnerRepository
	defaultOwner string
}

func NewLedgerOwnerResolver(owners repository.OwnerRepository, defaultOwnerID string) *LedgerOwnerResolver {
	return &LedgerOwnerResolver{owners: owners, defaultOwner: defaultOwnerID}
}

func (r *LedgerOwnerResolver) ResolveOwner(ctx context.Context, _ entity.StockKey, receive *entity.MovementEntry) (string, error) {
	if receive == nil {
		return r.defaultOwner, nil
	}
	if r.owners != nil {
		owner, err := r.owners.OwnerForReceive(ctx, receive)
		if err != nil {
			return "", err
		}
		if owner != "" {
			return owner, nil
		}
	}
	if receive.OwnerID != "" {
		return receive.OwnerID, nil
	}
	return r.defaultOwner, nil
}
