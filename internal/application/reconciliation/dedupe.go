package reconciliation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Deduplicate fusiona los grupos de registros con la misma clave en el más antiguo. Las
// reservas activas de los borrados pasan al conservado. Un grupo cuyo conservado quedaría con
// reservado > total no se toca y se informa como riesgo de integridad.
func (s *Service) Deduplicate(ctx context.Context, mode string) (*entity.DedupeResult, error) {
	m, err := ParseDedupeMode(mode, s.cfg.DefaultDedupeMode)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "reconciliation.deduplicate")
	defer span.End()
	span.SetAttributes(attribute.String("dedupe.mode", string(m)))

	result := &entity.DedupeResult{Mode: string(m), Details: []entity.DedupeDetail{}}
	err = s.withRepairLock(ctx, func() error {
		records, err := s.stockRepo.ListAll(ctx)
		if err != nil {
			return err
		}
		groups := groupByKey(records)

		var rp *replay
		if m == ModeLedger {
			if rp, err = s.replayLedger(ctx); err != nil {
				return err
			}
		}

		for _, key := range sortedKeys(groups) {
			if len(groups[key]) < 2 {
				continue
			}
			expected := 0
			if rp != nil {
				expected = rp.net[key]
			}
			detail, err := s.dedupeGroup(ctx, key, m, expected)
			if err != nil {
				return err
			}
			if detail == nil {
				continue
			}
			result.Details = append(result.Details, *detail)
			if detail.IntegrityRisk != "" {
				s.log.Warn().Str("key", key.String()).Str("risk", detail.IntegrityRisk).Msg("grupo duplicado omitido")
				continue
			}
			result.DeduplicatedCount++
			result.DeletedCount += len(detail.DeletedIDs)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return result, err
	}

	span.SetAttributes(attribute.Int("dedupe.deleted", result.DeletedCount))
	s.log.Info().
		Str("mode", result.Mode).
		Int("groups", result.DeduplicatedCount).
		Int("deleted", result.DeletedCount).
		Msg("deduplicación completada")
	return result, nil
}

// dedupeGroup resuelve un grupo dentro de una transacción con la clave bloqueada.
// Devuelve nil si al bloquear ya no había duplicados.
func (s *Service) dedupeGroup(ctx context.Context, key entity.StockKey, mode DedupeMode, expected int) (*entity.DedupeDetail, error) {
	var detail *entity.DedupeDetail
	err := s.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		stockRepo repository.StockRecordRepository,
		resRepo repository.ReservationRepository,
	) error {
		detail = nil
		if err := stockRepo.LockKey(ctx, key); err != nil {
			return err
		}
		recs, err := stockRepo.ListByKeyForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if len(recs) < 2 {
			return nil
		}
		keeper, others := recs[0], recs[1:]

		sumTotal, sumReserved := 0, 0
		for _, r := range recs {
			sumTotal += r.QuantityTotal
			sumReserved += r.QuantityReserved
		}

		d := &entity.DedupeDetail{
			ProductIdentity: key.ProductIdentity,
			LocationID:      key.LocationID,
			LotID:           key.LotID,
			KeptID:          keeper.ID,
			DeletedIDs:      []string{},
		}
		detail = d

		var target int
		switch mode {
		case ModeKeepEarliest:
			d.Strategy, target = string(ModeKeepEarliest), keeper.QuantityTotal
		case ModeSum:
			d.Strategy, target = string(ModeSum), sumTotal
		case ModeLedger:
			switch expected {
			case keeper.QuantityTotal:
				d.Strategy, target = string(ModeKeepEarliest), keeper.QuantityTotal
			case sumTotal:
				d.Strategy, target = string(ModeSum), sumTotal
			default:
				d.IntegrityRisk = fmt.Sprintf("el ledger espera %d; conservar da %d y sumar da %d", expected, keeper.QuantityTotal, sumTotal)
				return nil
			}
		}
		d.Quantity = target
		if sumReserved > target {
			d.IntegrityRisk = fmt.Sprintf("reservado %d supera el total resultante %d", sumReserved, target)
			return nil
		}

		for _, dup := range others {
			n, err := resRepo.Repoint(ctx, dup.ID, keeper.ID)
			if err != nil {
				return err
			}
			d.RepointedReservations += n
			if err := stockRepo.Delete(ctx, dup.ID); err != nil {
				return err
			}
			d.DeletedIDs = append(d.DeletedIDs, dup.ID)
		}
		keeper.SetQuantities(target, sumReserved)
		return stockRepo.UpdateQuantities(ctx, keeper)
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}
