package allocation

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/lwin"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Matcher estrategia de búsqueda de candidatos para un producto. Devuelve registros con
// disponible > 0 ordenados por disponible descendente.
type Matcher interface {
	Name() string
	Candidates(ctx context.Context, stockRepo repository.StockRecordRepository, productIdentity string) ([]*entity.StockRecord, error)
}

// ExactMatcher coincide por código completo.
type ExactMatcher struct{}

func (ExactMatcher) Name() string { return "exact" }

func (ExactMatcher) Candidates(ctx context.Context, stockRepo repository.StockRecordRepository, productIdentity string) ([]*entity.StockRecord, error) {
	return stockRepo.ListAvailable(ctx, entity.StockFilter{ProductIdentity: productIdentity})
}

// PrefixMatcher solo actúa con códigos parciales (LWIN7/LWIN11): busca todos los empaques del vino.
type PrefixMatcher struct{}

func (PrefixMatcher) Name() string { return "prefix" }

func (PrefixMatcher) Candidates(ctx context.Context, stockRepo repository.StockRecordRepository, productIdentity string) ([]*entity.StockRecord, error) {
	if !lwin.IsPartial(productIdentity) {
		return nil, nil
	}
	return stockRepo.ListAvailable(ctx, entity.StockFilter{ProductIdentity: productIdentity, Prefix: true})
}

// firstMatch recorre la cadena y se queda con la primera estrategia que encuentra candidatos.
func firstMatch(ctx context.Context, matchers []Matcher, stockRepo repository.StockRecordRepository, productIdentity string) ([]*entity.StockRecord, string, error) {
	for _, m := range matchers {
		cands, err := m.Candidates(ctx, stockRepo, productIdentity)
		if err != nil {
			return nil, m.Name(), err
		}
		if len(cands) > 0 {
			return cands, m.Name(), nil
		}
	}
	return nil, "", nil
}
