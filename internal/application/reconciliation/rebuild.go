package reconciliation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// RebuildFromMovements reproduce el ledger y ajusta la caché a lo reproducido: crea los
// registros que falten (reservado 0) y actualiza el total de los que difieran. Las claves con
// neto <= 0 se descartan. Cada cambio deja un ajuste de corrección en el ledger, en la misma
// transacción, que el replay ignora.
func (s *Service) RebuildFromMovements(ctx context.Context) (*entity.RebuildResult, error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.rebuild")
	defer span.End()

	result := &entity.RebuildResult{Errors: []string{}}
	err := s.withRepairLock(ctx, func() error {
		rp, err := s.replayLedger(ctx)
		if err != nil {
			return err
		}
		for _, key := range sortedKeys(rp.net) {
			net := rp.net[key]
			if net <= 0 {
				continue
			}
			receive := rp.earliestReceive[productLot{product: key.ProductIdentity, lot: key.LotID}]
			if err := s.rebuildKey(ctx, key, net, receive, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return result, err
	}

	span.SetAttributes(
		attribute.Int("rebuild.created", result.Created),
		attribute.Int("rebuild.updated", result.Updated),
		attribute.Int("rebuild.errors", len(result.Errors)),
	)
	s.log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("errors", len(result.Errors)).
		Msg("caché reconstruida desde el ledger")
	return result, nil
}

func (s *Service) rebuildKey(ctx context.Context, key entity.StockKey, net int, receive *entity.MovementEntry, result *entity.RebuildResult) error {
	existing, err := s.stockRepo.ListByKey(ctx, key)
	if err != nil {
		return err
	}
	// El propietario se resuelve fuera de la transacción: consulta otros módulos.
	canCreate := len(existing) == 0
	var owner string
	if canCreate {
		if owner, err = s.owners.ResolveOwner(ctx, key, receive); err != nil {
			return fmt.Errorf("resolve owner %s: %w", key, err)
		}
	}

	var outcome string
	err = s.txRunner.Run(ctx, func(
		movRepo repository.MovementRepository,
		stockRepo repository.StockRecordRepository,
		_ repository.ReservationRepository,
	) error {
		outcome = ""
		if err := stockRepo.LockKey(ctx, key); err != nil {
			return err
		}
		recs, err := stockRepo.ListByKeyForUpdate(ctx, key)
		if err != nil {
			return err
		}
		switch {
		case len(recs) > 1:
			outcome = fmt.Sprintf("%s: %d registros duplicados; ejecute la deduplicación primero", key, len(recs))
			return nil
		case len(recs) == 1:
			rec := recs[0]
			if rec.QuantityTotal == net {
				outcome = "unchanged"
				return nil
			}
			if rec.QuantityReserved > net {
				outcome = fmt.Sprintf("%s: reservado %d supera el neto del ledger %d", key, rec.QuantityReserved, net)
				return nil
			}
			delta := net - rec.QuantityTotal
			rec.SetQuantities(net, rec.QuantityReserved)
			if err := stockRepo.UpdateQuantities(ctx, rec); err != nil {
				return err
			}
			outcome = "updated"
			return movRepo.Append(ctx, correction(key, delta, rec.OwnerID))
		default:
			if !canCreate {
				// Desapareció entre la lectura y el bloqueo; se reintenta en la próxima reconstrucción.
				outcome = fmt.Sprintf("%s: el registro cambió durante la reconstrucción", key)
				return nil
			}
			rec := &entity.StockRecord{
				ProductIdentity: key.ProductIdentity,
				LocationID:      key.LocationID,
				LotID:           key.LotID,
				OwnerID:         owner,
			}
			rec.SetQuantities(net, 0)
			if err := stockRepo.Create(ctx, rec); err != nil {
				return err
			}
			outcome = "created"
			return movRepo.Append(ctx, correction(key, net, owner))
		}
	})
	if err != nil {
		return err
	}

	switch outcome {
	case "created":
		result.Created++
	case "updated":
		result.Updated++
	case "unchanged":
		result.Unchanged++
	default:
		result.Errors = append(result.Errors, outcome)
		s.log.Warn().Str("key", key.String()).Msg(outcome)
	}
	return nil
}

// correction ajuste de auditoría escrito por la reparación; no cuenta en el replay.
func correction(key entity.StockKey, delta int, owner string) *entity.MovementEntry {
	return &entity.MovementEntry{
		MovementType:    entity.MovementAdjust,
		ProductIdentity: key.ProductIdentity,
		ToLocation:      key.LocationID,
		LotID:           key.LotID,
		Quantity:        delta,
		OwnerID:         owner,
		Details:         entity.AdjustDetails{Reason: "rebuild_from_movements", Correction: true},
		PerformedBy:     performedBy,
	}
}
