// Package reconciliation compara el ledger con la caché de stock y repara la deriva:
// conciliación de solo lectura, reconstrucción, deduplicación y reinicio destructivo.
package reconciliation

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

const (
	tracerName = "github.com/jhoicas/stock-ledger/reconciliation"
	// repairLock es compartido por todas las reparaciones: no corren en paralelo entre sí.
	repairLock  = "repair"
	performedBy = "reconciliation"
)

// JobLocker candado exclusivo para operaciones de reparación. Ocupado = domain.ErrRepairInProgress.
type JobLocker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, error)
}

// DedupeMode estrategia para resolver grupos duplicados.
type DedupeMode string

const (
	// ModeKeepEarliest conserva el registro más antiguo tal cual (los duplicados son copias completas).
	ModeKeepEarliest DedupeMode = "keep_earliest"
	// ModeSum suma las cantidades en el más antiguo (los duplicados son asientos parciales).
	ModeSum DedupeMode = "sum"
	// ModeLedger decide por grupo comparando con el ledger; si nada coincide, no toca el grupo.
	ModeLedger DedupeMode = "ledger"
)

// ParseDedupeMode valida el modo; vacío devuelve def.
func ParseDedupeMode(s string, def DedupeMode) (DedupeMode, error) {
	switch DedupeMode(s) {
	case "":
		return def, nil
	case ModeKeepEarliest, ModeSum, ModeLedger:
		return DedupeMode(s), nil
	}
	return "", fmt.Errorf("%w: modo de deduplicación %q desconocido", domain.ErrInvalidInput, s)
}

// Config parámetros del toolkit.
type Config struct {
	AllowClearAll     bool
	DefaultDedupeMode DedupeMode
}

// Service toolkit de conciliación y reparación.
type Service struct {
	txRunner    repository.TxRunner
	stockRepo   repository.StockRecordRepository
	movRepo     repository.MovementRepository
	maintenance repository.MaintenanceRepository
	owners      OwnerResolver
	locker      JobLocker
	cfg         Config
	log         zerolog.Logger
	tracer      trace.Tracer
}

// NewService construye el toolkit. stockRepo y movRepo se usan para lecturas fuera de transacción.
func NewService(
	txRunner repository.TxRunner,
	stockRepo repository.StockRecordRepository,
	movRepo repository.MovementRepository,
	maintenance repository.MaintenanceRepository,
	owners OwnerResolver,
	locker JobLocker,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.DefaultDedupeMode == "" {
		cfg.DefaultDedupeMode = ModeKeepEarliest
	}
	return &Service{
		txRunner:    txRunner,
		stockRepo:   stockRepo,
		movRepo:     movRepo,
		maintenance: maintenance,
		owners:      owners,
		locker:      locker,
		cfg:         cfg,
		log:         log,
		tracer:      otel.Tracer(tracerName),
	}
}

// withRepairLock ejecuta fn con el candado de reparación tomado.
func (s *Service) withRepairLock(ctx context.Context, fn func() error) error {
	release, err := s.locker.Acquire(ctx, repairLock)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("no se pudo liberar el candado de reparación")
		}
	}()
	return fn()
}

// replay es el resultado de recorrer el ledger una vez.
type replay struct {
	net             map[entity.StockKey]int
	earliestReceive map[productLot]*entity.MovementEntry
	inbound         map[productLot]bool
	received        int
	picked          int
	adjusted        int
}

type productLot struct {
	product string
	lot     string
}

// replayLedger reproduce el ledger con los mismos efectos firmados que se usan al aplicar movimientos.
func (s *Service) replayLedger(ctx context.Context) (*replay, error) {
	r := &replay{
		net:             make(map[entity.StockKey]int),
		earliestReceive: make(map[productLot]*entity.MovementEntry),
		inbound:         make(map[productLot]bool),
	}
	err := s.movRepo.Each(ctx, func(m *entity.MovementEntry) error {
		for _, eff := range m.ReplayEffects() {
			r.net[eff.Key] += eff.Delta
		}
		pl := productLot{product: m.ProductIdentity, lot: m.LotID}
		if m.IsInbound() {
			r.inbound[pl] = true
		}
		switch {
		case m.MovementType == entity.MovementReceive:
			r.received += m.Quantity
			if _, ok := r.earliestReceive[pl]; !ok {
				r.earliestReceive[pl] = m
			}
		case m.MovementType == entity.MovementPick:
			r.picked += m.Quantity
		case m.MovementType == entity.MovementAdjust && !m.IsCorrection():
			r.adjusted += m.Quantity
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	return r, nil
}

func sortedKeys[V any](m map[entity.StockKey]V) []entity.StockKey {
	keys := make([]entity.StockKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func groupByKey(records []*entity.StockRecord) map[entity.StockKey][]*entity.StockRecord {
	groups := make(map[entity.StockKey][]*entity.StockRecord)
	for _, rec := range records {
		groups[rec.Key()] = append(groups[rec.Key()], rec)
	}
	return groups
}
