// Package stock implementa la caché de stock: consulta de disponible y aplicación
// transaccional de movimientos del ledger.
package stock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/lwin"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// MovementInput entrada para registrar un movimiento. Quantity es positiva salvo en adjust.
type MovementInput struct {
	MovementType    entity.MovementType
	ProductIdentity string
	FromLocation    string
	ToLocation      string
	Quantity        int
	LotID           string
	OwnerID         string
	Details         entity.Details
	PerformedAt     time.Time
	PerformedBy     string
}

// Service caso de uso de la caché de stock.
type Service struct {
	txRunner     repository.TxRunner
	stockRepo    repository.StockRecordRepository
	movRepo      repository.MovementRepository
	defaultOwner string
	log          zerolog.Logger
	now          func() time.Time
}

// NewService construye el servicio. stockRepo y movRepo se usan para lecturas fuera de transacción.
func NewService(
	txRunner repository.TxRunner,
	stockRepo repository.StockRecordRepository,
	movRepo repository.MovementRepository,
	defaultOwnerID string,
	log zerolog.Logger,
) *Service {
	return &Service{
		txRunner:     txRunner,
		stockRepo:    stockRepo,
		movRepo:      movRepo,
		defaultOwner: defaultOwnerID,
		log:          log,
		now:          time.Now,
	}
}

// GetAvailable devuelve los registros con disponible > 0 para el producto, mayor disponible primero.
// Un código parcial (LWIN7/LWIN11) se busca siempre por prefijo.
func (s *Service) GetAvailable(ctx context.Context, productIdentity string, filter entity.StockFilter) ([]*entity.StockRecord, error) {
	id, err := lwin.Parse(productIdentity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: limit negativo", domain.ErrInvalidInput)
	}
	filter.ProductIdentity = id.Code
	if id.IsPartial() {
		filter.Prefix = true
	}
	return s.stockRepo.ListAvailable(ctx, filter)
}

// History devuelve los movimientos del producto, más recientes primero.
func (s *Service) History(ctx context.Context, productIdentity string, limit int) ([]*entity.MovementEntry, error) {
	if _, err := lwin.Parse(productIdentity); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.movRepo.ListByProduct(ctx, productIdentity, limit)
}

// ApplyMovement valida el movimiento y, en una sola transacción, agrega la entrada al ledger
// y aplica sus efectos sobre la caché. Si algún efecto no es aplicable no cambia nada.
func (s *Service) ApplyMovement(ctx context.Context, in MovementInput) (*entity.MovementEntry, error) {
	entries, err := s.ApplyBatch(ctx, []MovementInput{in})
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// ApplyBatch aplica varios movimientos en una transacción (p. ej. las dos mitades de un reempaque).
func (s *Service) ApplyBatch(ctx context.Context, inputs []MovementInput) ([]*entity.MovementEntry, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: lote vacío", domain.ErrInvalidInput)
	}
	now := s.now().UTC()
	entries := make([]*entity.MovementEntry, 0, len(inputs))
	for i, in := range inputs {
		if err := ValidateMovement(in); err != nil {
			return nil, fmt.Errorf("movimiento %d: %w", i, err)
		}
		entries = append(entries, newEntry(in, now))
	}

	err := s.txRunner.Run(ctx, func(
		movRepo repository.MovementRepository,
		stockRepo repository.StockRecordRepository,
		resRepo repository.ReservationRepository,
	) error {
		if err := lockKeys(ctx, stockRepo, entries); err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.apply(ctx, stockRepo, resRepo, e); err != nil {
				return err
			}
			if err := movRepo.Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Debug().Err(err).Int("movements", len(entries)).Msg("movimientos rechazados")
		return nil, err
	}
	for _, e := range entries {
		s.log.Info().
			Str("movement_id", e.ID).
			Str("type", string(e.MovementType)).
			Str("product_identity", e.ProductIdentity).
			Int("quantity", e.Quantity).
			Msg("movimiento aplicado")
	}
	return entries, nil
}

func newEntry(in MovementInput, now time.Time) *entity.MovementEntry {
	performedAt := in.PerformedAt
	if performedAt.IsZero() {
		performedAt = now
	}
	return &entity.MovementEntry{
		MovementType:    in.MovementType,
		ProductIdentity: in.ProductIdentity,
		FromLocation:    in.FromLocation,
		ToLocation:      in.ToLocation,
		Quantity:        in.Quantity,
		LotID:           in.LotID,
		OwnerID:         in.OwnerID,
		Details:         in.Details,
		PerformedAt:     performedAt,
		PerformedBy:     in.PerformedBy,
	}
}

// lockKeys bloquea todas las claves afectadas en orden fijo para no generar deadlocks entre lotes.
func lockKeys(ctx context.Context, stockRepo repository.StockRecordRepository, entries []*entity.MovementEntry) error {
	seen := make(map[entity.StockKey]struct{})
	var keys []entity.StockKey
	for _, e := range entries {
		for _, eff := range e.Effects() {
			if _, ok := seen[eff.Key]; ok {
				continue
			}
			seen[eff.Key] = struct{}{}
			keys = append(keys, eff.Key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		if err := stockRepo.LockKey(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// apply muta la caché según los efectos de e. Completa e.OwnerID con el propietario resuelto.
func (s *Service) apply(
	ctx context.Context,
	stockRepo repository.StockRecordRepository,
	resRepo repository.ReservationRepository,
	e *entity.MovementEntry,
) error {
	if d, ok := e.Details.(entity.PickDetails); ok && d.ReservationID != "" {
		return s.consumeReservation(ctx, stockRepo, resRepo, e, d.ReservationID)
	}

	var sourceOwner string
	for _, eff := range e.Effects() {
		rec, err := stockRepo.FindByKeyForUpdate(ctx, eff.Key)
		if err != nil {
			return err
		}
		if eff.Delta < 0 {
			if rec == nil || rec.QuantityAvailable < -eff.Delta {
				return fmt.Errorf("%s: %w", eff.Key, domain.ErrInsufficientStock)
			}
			rec.SetQuantities(rec.QuantityTotal+eff.Delta, rec.QuantityReserved)
			if err := stockRepo.UpdateQuantities(ctx, rec); err != nil {
				return err
			}
			sourceOwner = rec.OwnerID
			continue
		}

		if rec != nil {
			rec.SetQuantities(rec.QuantityTotal+eff.Delta, rec.QuantityReserved)
			if err := stockRepo.UpdateQuantities(ctx, rec); err != nil {
				return err
			}
			sourceOwner = rec.OwnerID
			continue
		}
		rec = &entity.StockRecord{
			ProductIdentity: eff.Key.ProductIdentity,
			LocationID:      eff.Key.LocationID,
			LotID:           eff.Key.LotID,
			OwnerID:         firstNonEmpty(e.OwnerID, sourceOwner, s.defaultOwner),
		}
		rec.SetQuantities(eff.Delta, 0)
		if err := stockRepo.Create(ctx, rec); err != nil {
			return err
		}
		sourceOwner = rec.OwnerID
	}
	if e.OwnerID == "" {
		e.OwnerID = sourceOwner
	}
	return nil
}

// consumeReservation: el picking de una reserva baja total y reservado (el disponible no cambia)
// y pasa la reserva a consumed.
func (s *Service) consumeReservation(
	ctx context.Context,
	stockRepo repository.StockRecordRepository,
	resRepo repository.ReservationRepository,
	e *entity.MovementEntry,
	reservationID string,
) error {
	res, err := resRepo.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("reserva %s: %w", reservationID, domain.ErrNotFound)
	}
	if res.Status != entity.ReservationActive {
		return fmt.Errorf("reserva %s en estado %s: %w", reservationID, res.Status, domain.ErrConflict)
	}
	if res.Quantity != e.Quantity {
		return fmt.Errorf("%w: la cantidad (%d) debe coincidir con la reserva (%d)", domain.ErrInvalidInput, e.Quantity, res.Quantity)
	}
	rec, err := stockRepo.GetByIDForUpdate(ctx, res.StockRecordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("registro %s de la reserva: %w", res.StockRecordID, domain.ErrNotFound)
	}
	if rec.ProductIdentity != e.ProductIdentity || rec.LocationID != e.FromLocation || rec.LotID != e.LotID {
		return fmt.Errorf("%w: la reserva apunta a %s", domain.ErrInvalidInput, rec.Key())
	}
	if rec.QuantityReserved < e.Quantity || rec.QuantityTotal < e.Quantity {
		return fmt.Errorf("%s: %w", rec.Key(), domain.ErrConflict)
	}
	ok, err := resRepo.TransitionStatus(ctx, res.ID, entity.ReservationActive, entity.ReservationConsumed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reserva %s ya no está activa: %w", res.ID, domain.ErrConflict)
	}
	rec.SetQuantities(rec.QuantityTotal-e.Quantity, rec.QuantityReserved-e.Quantity)
	if err := stockRepo.UpdateQuantities(ctx, rec); err != nil {
		return err
	}
	if e.OwnerID == "" {
		e.OwnerID = rec.OwnerID
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
