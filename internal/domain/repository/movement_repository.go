package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// MovementRepository puerto del ledger de movimientos. Solo se agregan entradas: no hay Update ni Delete.
type MovementRepository interface {
	Append(ctx context.Context, m *entity.MovementEntry) error
	// Each recorre el ledger completo en orden cronológico (performed_at, created_at).
	Each(ctx context.Context, fn func(m *entity.MovementEntry) error) error
	ListByProduct(ctx context.Context, productIdentity string, limit int) ([]*entity.MovementEntry, error)
}
