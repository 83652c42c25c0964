package reconciliation_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/reconciliation"
	"github.com/jhoicas/stock-ledger/internal/application/stock"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/locks"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memstore"
)

const wine = "101122720150600750"

// ── helpers ──────────────────────────────────────────────────────────────────

type env struct {
	store  *memstore.Store
	stock  *stock.Service
	svc    *reconciliation.Service
	locker *locks.LocalLocker
}

func newEnv(t *testing.T, cfg reconciliation.Config) *env {
	t.Helper()
	store := memstore.New()
	locker := locks.NewLocalLocker()
	return &env{
		store: store,
		stock: stock.NewService(store, store.StockRecords(), store.Movements(), "default-owner", zerolog.Nop()),
		svc: reconciliation.NewService(
			store, store.StockRecords(), store.Movements(), store.Maintenance(),
			reconciliation.NewLedgerOwnerResolver(store.Owners(), "default-owner"),
			locker, cfg, zerolog.Nop(),
		),
		locker: locker,
	}
}

func (e *env) apply(t *testing.T, in stock.MovementInput) {
	t.Helper()
	in.ProductIdentity = wine
	_, err := e.stock.ApplyMovement(context.Background(), in)
	require.NoError(t, err)
}

func (e *env) rawRecord(t *testing.T, loc, lot string, total, reserved int) *entity.StockRecord {
	t.Helper()
	rec := &entity.StockRecord{ProductIdentity: wine, LocationID: loc, LotID: lot, OwnerID: "owner-1"}
	rec.SetQuantities(total, reserved)
	require.NoError(t, e.store.StockRecords().Create(context.Background(), rec))
	return rec
}

// ledgerOnly agrega una recepción al ledger sin tocar la caché.
func (e *env) ledgerOnly(t *testing.T, loc, lot string, qty int) {
	t.Helper()
	require.NoError(t, e.store.Movements().Append(context.Background(), &entity.MovementEntry{
		MovementType: entity.MovementReceive, ProductIdentity: wine, ToLocation: loc, LotID: lot, Quantity: qty,
	}))
}

func (e *env) byKey(t *testing.T, loc, lot string) []*entity.StockRecord {
	t.Helper()
	recs, err := e.store.StockRecords().ListByKey(context.Background(), entity.StockKey{ProductIdentity: wine, LocationID: loc, LotID: lot})
	require.NoError(t, err)
	return recs
}

func (e *env) seedLedger(t *testing.T) {
	t.Helper()
	e.store.Owners().SetShipmentOwner("S1", "owner-ship")
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "A1", LotID: "L1", Quantity: 10,
		Details: entity.ReceiveDetails{ShipmentID: "S1"}})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "B1", LotID: "L2", Quantity: 5, OwnerID: "owner-1"})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementTransfer, FromLocation: "A1", ToLocation: "C1", LotID: "L1", Quantity: 3})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementPick, FromLocation: "B1", LotID: "L2", Quantity: 2})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementAdjust, ToLocation: "A1", LotID: "L1", Quantity: -1,
		Details: entity.AdjustDetails{Reason: "rotura"}})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "D1", LotID: "L3", Quantity: 2, OwnerID: "owner-1"})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementPick, FromLocation: "D1", LotID: "L3", Quantity: 2})
}

// ── Reconcile ────────────────────────────────────────────────────────────────

func TestReconcile_LedgerYCacheCoinciden(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.seedLedger(t)

	rep, err := e.svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Summary.IsReconciled)
	assert.Equal(t, 17, rep.Summary.MovementsReceived)
	assert.Equal(t, 4, rep.Summary.MovementsPicked)
	assert.Equal(t, -1, rep.Summary.MovementsAdjusted)
	assert.Equal(t, 12, rep.Summary.ExpectedStock)
	assert.Equal(t, 12, rep.Summary.ActualStock)
	assert.Zero(t, rep.Summary.Discrepancy)
	assert.Empty(t, rep.Issues.Drifts)
	assert.Empty(t, rep.Issues.OrphanRecords)
}

func TestReconcile_DerivasQueSeCompensanNoConcilian(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "A1", LotID: "L1", Quantity: 10})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "B1", LotID: "L1", Quantity: 10})

	ctx := context.Background()
	a := e.byKey(t, "A1", "L1")[0]
	a.SetQuantities(12, 0)
	require.NoError(t, e.store.StockRecords().UpdateQuantities(ctx, a))
	b := e.byKey(t, "B1", "L1")[0]
	b.SetQuantities(8, 0)
	require.NoError(t, e.store.StockRecords().UpdateQuantities(ctx, b))

	rep, err := e.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Summary.Discrepancy, "la discrepancia global se compensa")
	assert.False(t, rep.Summary.IsReconciled, "pero cada clave debe coincidir")
	require.Len(t, rep.Issues.Drifts, 2)
	assert.Equal(t, 2, rep.Issues.Drifts[0].Discrepancy)
	assert.Equal(t, -2, rep.Issues.Drifts[1].Discrepancy)
}

func TestReconcile_HuerfanosYDuplicados(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "A1", LotID: "L1", Quantity: 10})
	orphan := e.rawRecord(t, "Z9", "SIN-RECEPCION", 4, 0)
	e.rawRecord(t, "A1", "L1", 10, 0)

	rep, err := e.svc.Reconcile(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Issues.OrphanRecords, 1)
	assert.Equal(t, orphan.ID, rep.Issues.OrphanRecords[0].StockRecordID)
	require.Len(t, rep.Issues.DuplicateGroups, 1)
	assert.Len(t, rep.Issues.DuplicateGroups[0].RecordIDs, 2)
	assert.Equal(t, 20, rep.Issues.DuplicateGroups[0].TotalQuantity)
	assert.Equal(t, 14, rep.Summary.Discrepancy)
	assert.False(t, rep.Summary.IsReconciled)
}

// ── RebuildFromMovements ─────────────────────────────────────────────────────

func TestRebuild_IdaYVueltaConReconcile(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.seedLedger(t)
	ctx := context.Background()

	all, err := e.store.StockRecords().ListAll(ctx)
	require.NoError(t, err)
	for _, rec := range all {
		require.NoError(t, e.store.StockRecords().Delete(ctx, rec.ID))
	}

	res, err := e.svc.RebuildFromMovements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created, "D1/L3 tiene neto 0 y se descarta")
	assert.Empty(t, res.Errors)

	a := e.byKey(t, "A1", "L1")
	require.Len(t, a, 1)
	assert.Equal(t, 6, a[0].QuantityTotal)
	assert.Equal(t, 0, a[0].QuantityReserved)
	assert.Equal(t, "owner-ship", a[0].OwnerID, "propietario del envío de la primera recepción")
	assert.Equal(t, "owner-ship", e.byKey(t, "C1", "L1")[0].OwnerID)
	assert.Equal(t, "owner-1", e.byKey(t, "B1", "L2")[0].OwnerID)

	rep, err := e.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Summary.IsReconciled)
	assert.Equal(t, rep.Summary.ExpectedStock, rep.Summary.ActualStock)

	again, err := e.svc.RebuildFromMovements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)
	assert.Equal(t, 3, again.Unchanged, "las correcciones no cuentan en el replay")
}

func TestRebuild_ActualizaTotalYConservaReservado(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "A1", LotID: "L1", Quantity: 10})
	ctx := context.Background()

	rec := e.byKey(t, "A1", "L1")[0]
	rec.SetQuantities(7, 2)
	require.NoError(t, e.store.StockRecords().UpdateQuantities(ctx, rec))

	res, err := e.svc.RebuildFromMovements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	after := e.byKey(t, "A1", "L1")[0]
	assert.Equal(t, 10, after.QuantityTotal)
	assert.Equal(t, 2, after.QuantityReserved)
	assert.Equal(t, 8, after.QuantityAvailable)

	var corrections int
	require.NoError(t, e.store.Movements().Each(ctx, func(m *entity.MovementEntry) error {
		if m.IsCorrection() {
			corrections++
			assert.Equal(t, 3, m.Quantity)
		}
		return nil
	}))
	assert.Equal(t, 1, corrections, "cada cambio deja un ajuste de corrección")
}

func TestRebuild_OmiteDuplicadosYReservadoExcesivo(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "A1", LotID: "L1", Quantity: 10})
	e.rawRecord(t, "A1", "L1", 10, 0)

	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "B1", LotID: "L2", Quantity: 3})
	ctx := context.Background()
	b := e.byKey(t, "B1", "L2")[0]
	b.SetQuantities(9, 5)
	require.NoError(t, e.store.StockRecords().UpdateQuantities(ctx, b))

	res, err := e.svc.RebuildFromMovements(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 2)
	assert.Len(t, e.byKey(t, "A1", "L1"), 2, "la reconstrucción no borra duplicados")
	assert.Equal(t, 9, e.byKey(t, "B1", "L2")[0].QuantityTotal)
}

func TestRebuild_CandadoOcupado(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	ctx := context.Background()
	release, err := e.locker.Acquire(ctx, "repair")
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	_, err = e.svc.RebuildFromMovements(ctx)
	assert.ErrorIs(t, err, domain.ErrRepairInProgress)
	_, err = e.svc.Deduplicate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrRepairInProgress)
}

// ── Deduplicate ──────────────────────────────────────────────────────────────

func TestDeduplicate_EscenarioD_ConservaElMasAntiguo(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	first := e.rawRecord(t, "A1", "L1", 10, 0)
	e.rawRecord(t, "A1", "L1", 10, 0)
	e.rawRecord(t, "A1", "L1", 10, 0)

	res, err := e.svc.Deduplicate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "keep_earliest", res.Mode)
	assert.Equal(t, 1, res.DeduplicatedCount)
	assert.Equal(t, 2, res.DeletedCount)

	left := e.byKey(t, "A1", "L1")
	require.Len(t, left, 1)
	assert.Equal(t, first.ID, left[0].ID)
	assert.Equal(t, 10, left[0].QuantityTotal)
}

func TestDeduplicate_Suma(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.rawRecord(t, "A1", "L1", 4, 0)
	e.rawRecord(t, "A1", "L1", 5, 0)
	e.rawRecord(t, "A1", "L1", 6, 0)

	res, err := e.svc.Deduplicate(context.Background(), "sum")
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Equal(t, 15, e.byKey(t, "A1", "L1")[0].QuantityTotal)
}

func TestDeduplicate_ModoLedgerDecidePorGrupo(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	// copia completa: el ledger dice 10 y el conservado tiene 10
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "A1", LotID: "L1", Quantity: 10})
	e.rawRecord(t, "A1", "L1", 10, 0)
	// asientos parciales: el ledger dice 10 y los registros 4 + 6
	e.rawRecord(t, "B1", "L2", 4, 0)
	e.rawRecord(t, "B1", "L2", 6, 0)
	e.ledgerOnly(t, "B1", "L2", 10)
	// ninguna coincide
	e.rawRecord(t, "C1", "L3", 4, 0)
	e.rawRecord(t, "C1", "L3", 8, 0)
	e.ledgerOnly(t, "C1", "L3", 3)

	res, err := e.svc.Deduplicate(context.Background(), "ledger")
	require.NoError(t, err)
	require.Len(t, res.Details, 3)
	assert.Equal(t, "ledger", res.Mode)
	assert.Equal(t, 2, res.DeduplicatedCount)
	assert.Equal(t, 2, res.DeletedCount)

	assert.Equal(t, "keep_earliest", res.Details[0].Strategy)
	assert.Equal(t, 10, e.byKey(t, "A1", "L1")[0].QuantityTotal)
	assert.Equal(t, "sum", res.Details[1].Strategy)
	assert.Equal(t, 10, e.byKey(t, "B1", "L2")[0].QuantityTotal)
	assert.NotEmpty(t, res.Details[2].IntegrityRisk)
	assert.Len(t, e.byKey(t, "C1", "L3"), 2, "el grupo en riesgo no se toca")
}

func TestDeduplicate_ReasignaReservasYRespetaIntegridad(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	ctx := context.Background()
	keeper := e.rawRecord(t, "A1", "L1", 10, 0)
	dup := e.rawRecord(t, "A1", "L1", 10, 4)
	res := &entity.Reservation{StockRecordID: dup.ID, OrderID: "O1", OrderItemID: "OI1", Line: 1, Quantity: 4, Status: entity.ReservationActive}
	require.NoError(t, e.store.Reservations().Create(ctx, res))

	risky1 := e.rawRecord(t, "B1", "L2", 5, 3)
	e.rawRecord(t, "B1", "L2", 5, 5)

	out, err := e.svc.Deduplicate(ctx, "keep_earliest")
	require.NoError(t, err)
	assert.Equal(t, 1, out.DeduplicatedCount)
	require.Len(t, out.Details, 2)
	assert.Equal(t, 1, out.Details[0].RepointedReservations)
	assert.NotEmpty(t, out.Details[1].IntegrityRisk)

	got, err := e.store.Reservations().GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, keeper.ID, got.StockRecordID)
	after := e.byKey(t, "A1", "L1")
	require.Len(t, after, 1)
	assert.Equal(t, 4, after[0].QuantityReserved)
	assert.Equal(t, 6, after[0].QuantityAvailable)

	assert.Len(t, e.byKey(t, "B1", "L2"), 2)
	assert.Equal(t, risky1.ID, e.byKey(t, "B1", "L2")[0].ID)
}

func TestDeduplicate_ModoInvalido(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	_, err := e.svc.Deduplicate(context.Background(), "newest")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ── Reservas concurrentes con la reparación ──────────────────────────────────

// interleavedCarve modela una reserva de otra transacción (TryReserve sobre el registro más
// antiguo de la clave) que confirma una sola vez durante la reparación. Tras una lectura sin
// bloqueo confirma después de leer; una lectura FOR UPDATE la obliga a confirmar antes.
type interleavedCarve struct {
	repository.StockRecordRepository
	qty   int
	fired bool
}

func (c *interleavedCarve) carve(ctx context.Context, key entity.StockKey) error {
	if c.fired {
		return nil
	}
	c.fired = true
	recs, err := c.StockRecordRepository.ListByKey(ctx, key)
	if err != nil || len(recs) == 0 {
		return err
	}
	_, err = c.StockRecordRepository.TryReserve(ctx, recs[0].ID, c.qty)
	return err
}

func (c *interleavedCarve) ListByKey(ctx context.Context, key entity.StockKey) ([]*entity.StockRecord, error) {
	recs, err := c.StockRecordRepository.ListByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return recs, c.carve(ctx, key)
}

func (c *interleavedCarve) ListByKeyForUpdate(ctx context.Context, key entity.StockKey) ([]*entity.StockRecord, error) {
	if err := c.carve(ctx, key); err != nil {
		return nil, err
	}
	return c.StockRecordRepository.ListByKeyForUpdate(ctx, key)
}

type carveRunner struct {
	store *memstore.Store
	qty   int
}

func (r carveRunner) Run(ctx context.Context, fn func(
	repository.MovementRepository, repository.StockRecordRepository, repository.ReservationRepository,
) error) error {
	return r.store.Run(ctx, func(
		movRepo repository.MovementRepository, stockRepo repository.StockRecordRepository, resRepo repository.ReservationRepository,
	) error {
		return fn(movRepo, &interleavedCarve{StockRecordRepository: stockRepo, qty: r.qty}, resRepo)
	})
}

// withInterleavedCarve devuelve un toolkit sobre el mismo store cuyas transacciones sufren
// una reserva concurrente de qty unidades.
func (e *env) withInterleavedCarve(qty int) *reconciliation.Service {
	return reconciliation.NewService(
		carveRunner{store: e.store, qty: qty}, e.store.StockRecords(), e.store.Movements(), e.store.Maintenance(),
		reconciliation.NewLedgerOwnerResolver(e.store.Owners(), "default-owner"),
		locks.NewLocalLocker(), reconciliation.Config{}, zerolog.Nop(),
	)
}

func TestRebuild_NoPisaReservaConcurrente(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	e.apply(t, stock.MovementInput{MovementType: entity.MovementReceive, ToLocation: "A1", LotID: "L1", Quantity: 10})
	ctx := context.Background()
	rec := e.byKey(t, "A1", "L1")[0]
	rec.SetQuantities(7, 0)
	require.NoError(t, e.store.StockRecords().UpdateQuantities(ctx, rec))

	res, err := e.withInterleavedCarve(2).RebuildFromMovements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	after := e.byKey(t, "A1", "L1")[0]
	assert.Equal(t, 10, after.QuantityTotal)
	assert.Equal(t, 2, after.QuantityReserved, "la reserva confirmada en paralelo se conserva")
	assert.Equal(t, 8, after.QuantityAvailable)
}

func TestDeduplicate_NoPisaReservaConcurrente(t *testing.T) {
	e := newEnv(t, reconciliation.Config{})
	keeper := e.rawRecord(t, "A1", "L1", 10, 0)
	e.rawRecord(t, "A1", "L1", 10, 0)

	res, err := e.withInterleavedCarve(2).Deduplicate(context.Background(), "keep_earliest")
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedCount)

	after := e.byKey(t, "A1", "L1")
	require.Len(t, after, 1)
	assert.Equal(t, keeper.ID, after[0].ID)
	assert.Equal(t, 10, after[0].QuantityTotal)
	assert.Equal(t, 2, after[0].QuantityReserved, "la reserva confirmada en paralelo se conserva")
	assert.Equal(t, 8, after[0].QuantityAvailable)
}

// ── ClearAll ─────────────────────────────────────────────────────────────────

func TestClearAll_RequiereConfirmacionYHabilitacion(t *testing.T) {
	ctx := context.Background()

	disabled := newEnv(t, reconciliation.Config{})
	_, err := disabled.svc.ClearAll(ctx, false)
	assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
	_, err = disabled.svc.ClearAll(ctx, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	e := newEnv(t, reconciliation.Config{AllowClearAll: true})
	e.seedLedger(t)
	counts, err := e.svc.ClearAll(ctx, true)
	require.NoError(t, err)
	assert.EqualValues(t, 7, counts["stock_movements"])
	assert.EqualValues(t, 4, counts["stock_records"])

	all, err := e.store.StockRecords().ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
