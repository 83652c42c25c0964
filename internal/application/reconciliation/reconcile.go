package reconciliation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Reconcile compara lo que reproduce el ledger con la caché, clave por clave. Solo lee.
// Ledger y caché se leen en paralelo: el resultado es una foto eventualmente consistente.
func (s *Service) Reconcile(ctx context.Context) (*entity.ReconcileReport, error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.reconcile")
	defer span.End()

	var (
		rp      *replay
		records []*entity.StockRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rp, err = s.replayLedger(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.stockRepo.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &entity.ReconcileReport{
		Summary: entity.ReconcileSummary{
			MovementsReceived: rp.received,
			MovementsPicked:   rp.picked,
			MovementsAdjusted: rp.adjusted,
		},
		Issues: entity.ReconcileIssues{
			OrphanRecords:   []entity.OrphanRecord{},
			DuplicateGroups: []entity.DuplicateGroup{},
			Drifts:          []entity.Drift{},
		},
	}

	actual := make(map[entity.StockKey]int)
	for _, rec := range records {
		actual[rec.Key()] += rec.QuantityTotal
		report.Summary.ActualStock += rec.QuantityTotal
		if !rp.inbound[productLot{product: rec.ProductIdentity, lot: rec.LotID}] {
			report.Issues.OrphanRecords = append(report.Issues.OrphanRecords, entity.OrphanRecord{
				StockRecordID:   rec.ID,
				ProductIdentity: rec.ProductIdentity,
				LocationID:      rec.LocationID,
				LotID:           rec.LotID,
				QuantityTotal:   rec.QuantityTotal,
			})
		}
	}
	for _, net := range rp.net {
		report.Summary.ExpectedStock += net
	}
	report.Summary.Discrepancy = report.Summary.ActualStock - report.Summary.ExpectedStock

	groups := groupByKey(records)
	for _, key := range sortedKeys(groups) {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		dg := entity.DuplicateGroup{ProductIdentity: key.ProductIdentity, LocationID: key.LocationID, LotID: key.LotID}
		for _, rec := range group {
			dg.RecordIDs = append(dg.RecordIDs, rec.ID)
			dg.TotalQuantity += rec.QuantityTotal
		}
		report.Issues.DuplicateGroups = append(report.Issues.DuplicateGroups, dg)
	}

	all := make(map[entity.StockKey]struct{}, len(actual)+len(rp.net))
	for k := range actual {
		all[k] = struct{}{}
	}
	for k := range rp.net {
		all[k] = struct{}{}
	}
	for _, key := range sortedKeys(all) {
		exp, act := rp.net[key], actual[key]
		if exp == act {
			continue
		}
		report.Issues.Drifts = append(report.Issues.Drifts, entity.Drift{
			ProductIdentity: key.ProductIdentity,
			LocationID:      key.LocationID,
			LotID:           key.LotID,
			Expected:        exp,
			Actual:          act,
			Discrepancy:     act - exp,
		})
	}
	report.Summary.IsReconciled = len(report.Issues.Drifts) == 0

	span.SetAttributes(
		attribute.Int("reconcile.discrepancy", report.Summary.Discrepancy),
		attribute.Int("reconcile.drifts", len(report.Issues.Drifts)),
		attribute.Int("reconcile.orphans", len(report.Issues.OrphanRecords)),
		attribute.Int("reconcile.duplicate_groups", len(report.Issues.DuplicateGroups)),
	)
	if !report.Summary.IsReconciled {
		s.log.Warn().
			Int("discrepancy", report.Summary.Discrepancy).
			Int("drifts", len(report.Issues.Drifts)).
			Msg("la caché de stock no coincide con el ledger")
	}
	return report, nil
}
