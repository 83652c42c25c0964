// Package memstore implementa los puertos de repositorio en memoria con transacciones
// por copia de estado. Se usa en pruebas y en ejecuciones locales sin PostgreSQL.
package memstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.TxRunner = (*Store)(nil)

type state struct {
	records      map[string]*entity.StockRecord
	movements    []*entity.MovementEntry
	reservations map[string]*entity.Reservation
}

func newState() *state {
	return &state{
		records:      make(map[string]*entity.StockRecord),
		reservations: make(map[string]*entity.Reservation),
	}
}

// clone copia registros y reservas; las entradas del ledger son inmutables y se comparten.
func (s *state) clone() *state {
	c := &state{
		records:      make(map[string]*entity.StockRecord, len(s.records)),
		movements:    make([]*entity.MovementEntry, len(s.movements)),
		reservations: make(map[string]*entity.Reservation, len(s.reservations)),
	}
	for id, r := range s.records {
		cp := *r
		c.records[id] = &cp
	}
	copy(c.movements, s.movements)
	for id, r := range s.reservations {
		cp := *r
		c.reservations[id] = &cp
	}
	return c
}

// Store base de datos en memoria. Una transacción toma el candado global durante toda su
// ejecución; las operaciones fuera de transacción lo toman por operación.
type Store struct {
	mu   sync.Mutex
	st   *state
	base time.Time
	seq  atomic.Int64

	ownersMu       sync.RWMutex
	shipmentOwners map[string]string
	partnerOwners  map[string]string
}

// New crea un store vacío.
func New() *Store {
	return &Store{
		st:             newState(),
		base:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		shipmentOwners: make(map[string]string),
		partnerOwners:  make(map[string]string),
	}
}

// now devuelve instantes estrictamente crecientes para que el orden por fecha sea determinista.
func (s *Store) now() time.Time {
	return s.base.Add(time.Duration(s.seq.Add(1)) * time.Millisecond)
}

// Run ejecuta fn sobre una copia del estado y la publica solo si fn no falla.
func (s *Store) Run(ctx context.Context, fn func(
	movRepo repository.MovementRepository,
	stockRepo repository.StockRecordRepository,
	resRepo repository.ReservationRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.st.clone()
	v := view{s: s, tx: tx}
	if err := fn(&MovementRepo{v}, &StockRecordRepo{v}, &ReservationRepo{v}); err != nil {
		return err
	}
	s.st = tx
	return nil
}

// StockRecords repositorio de stock fuera de transacción.
func (s *Store) StockRecords() *StockRecordRepo { return &StockRecordRepo{view{s: s}} }

// Movements repositorio del ledger fuera de transacción.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{view{s: s}} }

// Reservations repositorio de reservas fuera de transacción.
func (s *Store) Reservations() *ReservationRepo { return &ReservationRepo{view{s: s}} }

// Maintenance repositorio de reinicio destructivo.
func (s *Store) Maintenance() *MaintenanceRepo { return &MaintenanceRepo{s: s} }

// Owners resolución de propietarios por envío/socio.
func (s *Store) Owners() *OwnerRepo { return &OwnerRepo{s: s} }

type view struct {
	s  *Store
	tx *state
}

func (v view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.st)
}

func sortRecords(list []*entity.StockRecord) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
