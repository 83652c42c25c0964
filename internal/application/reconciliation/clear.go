package reconciliation

import (
	"context"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// ClearAll reinicio destructivo previo al lanzamiento: desvincula referencias externas y borra
// reservas, movimientos y registros. Exige confirm y que la configuración lo habilite.
func (s *Service) ClearAll(ctx context.Context, confirm bool) (map[string]int64, error) {
	if !confirm {
		return nil, domain.ErrConfirmationRequired
	}
	if !s.cfg.AllowClearAll {
		return nil, fmt.Errorf("reinicio deshabilitado (LEDGER_ALLOW_CLEAR_ALL): %w", domain.ErrForbidden)
	}

	ctx, span := s.tracer.Start(ctx, "reconciliation.clear_all")
	defer span.End()

	var counts map[string]int64
	err := s.withRepairLock(ctx, func() error {
		var err error
		counts, err = s.maintenance.ClearAll(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ev := s.log.Warn()
	for table, n := range counts {
		ev = ev.Int64(table, n)
	}
	ev.Msg("inventario reiniciado")
	return counts, nil
}
