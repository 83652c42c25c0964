package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/lwin"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var (
	_ repository.StockRecordRepository = (*StockRecordRepo)(nil)
	_ repository.MovementRepository    = (*MovementRepo)(nil)
	_ repository.ReservationRepository = (*ReservationRepo)(nil)
	_ repository.MaintenanceRepository = (*MaintenanceRepo)(nil)
	_ repository.OwnerRepository       = (*OwnerRepo)(nil)
)

// StockRecordRepo implementación en memoria de StockRecordRepository.
type StockRecordRepo struct{ v view }

func copyRecord(r *entity.StockRecord) *entity.StockRecord {
	cp := *r
	return &cp
}

func (r *StockRecordRepo) GetByID(_ context.Context, id string) (*entity.StockRecord, error) {
	var out *entity.StockRecord
	err := r.v.do(func(st *state) error {
		if rec, ok := st.records[id]; ok {
			out = copyRecord(rec)
		}
		return nil
	})
	return out, err
}

// GetByIDForUpdate equivale a GetByID: la transacción en memoria ya es exclusiva.
func (r *StockRecordRepo) GetByIDForUpdate(ctx context.Context, id string) (*entity.StockRecord, error) {
	return r.GetByID(ctx, id)
}

func (r *StockRecordRepo) ListByKeyForUpdate(ctx context.Context, key entity.StockKey) ([]*entity.StockRecord, error) {
	return r.ListByKey(ctx, key)
}

// LockKey no hace nada: la transacción en memoria ya es exclusiva.
func (r *StockRecordRepo) LockKey(context.Context, entity.StockKey) error { return nil }

func (r *StockRecordRepo) FindByKeyForUpdate(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error) {
	list, err := r.ListByKey(ctx, key)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *StockRecordRepo) ListByKey(_ context.Context, key entity.StockKey) ([]*entity.StockRecord, error) {
	var list []*entity.StockRecord
	err := r.v.do(func(st *state) error {
		for _, rec := range st.records {
			if rec.Key() == key {
				list = append(list, copyRecord(rec))
			}
		}
		return nil
	})
	sortRecords(list)
	return list, err
}

func (r *StockRecordRepo) ListAvailable(_ context.Context, f entity.StockFilter) ([]*entity.StockRecord, error) {
	var list []*entity.StockRecord
	err := r.v.do(func(st *state) error {
		for _, rec := range st.records {
			if rec.QuantityAvailable <= 0 {
				continue
			}
			if f.Prefix {
				if !lwin.HasPrefix(rec.ProductIdentity, f.ProductIdentity) {
					continue
				}
			} else if rec.ProductIdentity != f.ProductIdentity {
				continue
			}
			if (f.LocationID != "" && rec.LocationID != f.LocationID) ||
				(f.OwnerID != "" && rec.OwnerID != f.OwnerID) ||
				(f.LotID != "" && rec.LotID != f.LotID) {
				continue
			}
			list = append(list, copyRecord(rec))
		}
		return nil
	})
	sortRecords(list)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].QuantityAvailable > list[j].QuantityAvailable
	})
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, err
}

func (r *StockRecordRepo) ListAll(_ context.Context) ([]*entity.StockRecord, error) {
	var list []*entity.StockRecord
	err := r.v.do(func(st *state) error {
		for _, rec := range st.records {
			list = append(list, copyRecord(rec))
		}
		return nil
	})
	sortRecords(list)
	return list, err
}

func (r *StockRecordRepo) Create(_ context.Context, rec *entity.StockRecord) error {
	if !rec.Valid() {
		return fmt.Errorf("create stock record: cantidades inconsistentes para %s", rec.Key())
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := r.v.s.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	return r.v.do(func(st *state) error {
		if _, ok := st.records[rec.ID]; ok {
			return fmt.Errorf("create stock record: %w", domain.ErrDuplicate)
		}
		st.records[rec.ID] = copyRecord(rec)
		return nil
	})
}

func (r *StockRecordRepo) UpdateQuantities(_ context.Context, rec *entity.StockRecord) error {
	if !rec.Valid() {
		return fmt.Errorf("update stock record: cantidades inconsistentes para %s", rec.Key())
	}
	rec.UpdatedAt = r.v.s.now()
	return r.v.do(func(st *state) error {
		cur, ok := st.records[rec.ID]
		if !ok {
			return fmt.Errorf("update stock record %s: %w", rec.ID, domain.ErrNotFound)
		}
		cur.SetQuantities(rec.QuantityTotal, rec.QuantityReserved)
		cur.UpdatedAt = rec.UpdatedAt
		return nil
	})
}

func (r *StockRecordRepo) TryReserve(_ context.Context, id string, qty int) (bool, error) {
	var ok bool
	err := r.v.do(func(st *state) error {
		cur, found := st.records[id]
		if !found || qty <= 0 || cur.QuantityAvailable < qty {
			return nil
		}
		cur.SetQuantities(cur.QuantityTotal, cur.QuantityReserved+qty)
		cur.UpdatedAt = r.v.s.now()
		ok = true
		return nil
	})
	return ok, err
}

func (r *StockRecordRepo) ReleaseReserved(_ context.Context, id string, qty int) (bool, error) {
	var ok bool
	err := r.v.do(func(st *state) error {
		cur, found := st.records[id]
		if !found || qty <= 0 || cur.QuantityReserved < qty {
			return nil
		}
		cur.SetQuantities(cur.QuantityTotal, cur.QuantityReserved-qty)
		cur.UpdatedAt = r.v.s.now()
		ok = true
		return nil
	})
	return ok, err
}

func (r *StockRecordRepo) Delete(_ context.Context, id string) error {
	return r.v.do(func(st *state) error {
		for _, res := range st.reservations {
			if res.StockRecordID == id {
				return fmt.Errorf("delete stock record %s: reservas referencian el registro: %w", id, domain.ErrConflict)
			}
		}
		delete(st.records, id)
		return nil
	})
}

// MovementRepo implementación en memoria del ledger.
type MovementRepo struct{ v view }

func (r *MovementRepo) Append(_ context.Context, m *entity.MovementEntry) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = r.v.s.now()
	if m.PerformedAt.IsZero() {
		m.PerformedAt = m.CreatedAt
	}
	cp := *m
	return r.v.do(func(st *state) error {
		st.movements = append(st.movements, &cp)
		return nil
	})
}

func (r *MovementRepo) snapshot() []*entity.MovementEntry {
	var list []*entity.MovementEntry
	_ = r.v.do(func(st *state) error {
		list = make([]*entity.MovementEntry, len(st.movements))
		copy(list, st.movements)
		return nil
	})
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].PerformedAt.Equal(list[j].PerformedAt) {
			return list[i].PerformedAt.Before(list[j].PerformedAt)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (r *MovementRepo) Each(ctx context.Context, fn func(m *entity.MovementEntry) error) error {
	for _, m := range r.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := *m
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

func (r *MovementRepo) ListByProduct(_ context.Context, productIdentity string, limit int) ([]*entity.MovementEntry, error) {
	all := r.snapshot()
	var list []*entity.MovementEntry
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ProductIdentity != productIdentity {
			continue
		}
		cp := *all[i]
		list = append(list, &cp)
		if limit > 0 && len(list) == limit {
			break
		}
	}
	return list, nil
}

// ReservationRepo implementación en memoria de reservas.
type ReservationRepo struct{ v view }

func copyReservation(r *entity.Reservation) *entity.Reservation {
	cp := *r
	return &cp
}

func (r *ReservationRepo) Create(_ context.Context, res *entity.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	now := r.v.s.now()
	res.CreatedAt, res.UpdatedAt = now, now
	return r.v.do(func(st *state) error {
		if _, ok := st.records[res.StockRecordID]; !ok {
			return fmt.Errorf("create reservation: stock record %s: %w", res.StockRecordID, domain.ErrNotFound)
		}
		if res.Status == entity.ReservationActive {
			for _, other := range st.reservations {
				if other.Status == entity.ReservationActive && other.OrderItemID == res.OrderItemID && other.Line == res.Line {
					return fmt.Errorf("create reservation: %w", domain.ErrDuplicate)
				}
			}
		}
		st.reservations[res.ID] = copyReservation(res)
		return nil
	})
}

func (r *ReservationRepo) GetByID(_ context.Context, id string) (*entity.Reservation, error) {
	var out *entity.Reservation
	err := r.v.do(func(st *state) error {
		if res, ok := st.reservations[id]; ok {
			out = copyReservation(res)
		}
		return nil
	})
	return out, err
}

func (r *ReservationRepo) HasActive(ctx context.Context, orderItemID string) (bool, error) {
	list, err := r.ListActiveByOrderItem(ctx, orderItemID)
	return len(list) > 0, err
}

func (r *ReservationRepo) list(match func(res *entity.Reservation) bool) []*entity.Reservation {
	var list []*entity.Reservation
	_ = r.v.do(func(st *state) error {
		for _, res := range st.reservations {
			if match(res) {
				list = append(list, copyReservation(res))
			}
		}
		return nil
	})
	sort.Slice(list, func(i, j int) bool {
		if list[i].Line != list[j].Line {
			return list[i].Line < list[j].Line
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (r *ReservationRepo) ListActiveByOrderItem(_ context.Context, orderItemID string) ([]*entity.Reservation, error) {
	return r.list(func(res *entity.Reservation) bool {
		return res.OrderItemID == orderItemID && res.Status == entity.ReservationActive
	}), nil
}

func (r *ReservationRepo) ListActiveByStockRecord(_ context.Context, stockRecordID string) ([]*entity.Reservation, error) {
	return r.list(func(res *entity.Reservation) bool {
		return res.StockRecordID == stockRecordID && res.Status == entity.ReservationActive
	}), nil
}

func (r *ReservationRepo) TransitionStatus(_ context.Context, id, from, to string) (bool, error) {
	var ok bool
	now := r.v.s.now()
	err := r.v.do(func(st *state) error {
		res, found := st.reservations[id]
		if !found || res.Status != from {
			return nil
		}
		res.Status = to
		res.UpdatedAt = now
		ok = true
		return nil
	})
	return ok, err
}

func (r *ReservationRepo) Repoint(_ context.Context, fromID, toID string) (int, error) {
	var n int
	now := r.v.s.now()
	err := r.v.do(func(st *state) error {
		for _, res := range st.reservations {
			if res.StockRecordID == fromID {
				res.StockRecordID = toID
				res.UpdatedAt = now
				n++
			}
		}
		return nil
	})
	return n, err
}

// MaintenanceRepo reinicio destructivo en memoria.
type MaintenanceRepo struct{ s *Store }

func (r *MaintenanceRepo) ClearAll(_ context.Context) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int64{
		"stock_reservations": int64(len(r.s.st.reservations)),
		"stock_movements":    int64(len(r.s.st.movements)),
		"stock_records":      int64(len(r.s.st.records)),
	}
	r.s.st = newState()
	return counts, nil
}

// OwnerRepo propietarios conocidos por envío y por socio.
type OwnerRepo struct{ s *Store }

// SetShipmentOwner registra el propietario de un envío.
func (r *OwnerRepo) SetShipmentOwner(shipmentID, ownerID string) {
	r.s.ownersMu.Lock()
	defer r.s.ownersMu.Unlock()
	r.s.shipmentOwners[shipmentID] = ownerID
}

// SetPartnerOwner registra el propietario asociado a un socio.
func (r *OwnerRepo) SetPartnerOwner(partnerID, ownerID string) {
	r.s.ownersMu.Lock()
	defer r.s.ownersMu.Unlock()
	r.s.partnerOwners[partnerID] = ownerID
}

func (r *OwnerRepo) OwnerForReceive(_ context.Context, receive *entity.MovementEntry) (string, error) {
	d, ok := receive.Details.(entity.ReceiveDetails)
	if !ok {
		return "", nil
	}
	r.s.ownersMu.RLock()
	defer r.s.ownersMu.RUnlock()
	if owner := r.s.shipmentOwners[d.ShipmentID]; d.ShipmentID != "" && owner != "" {
		return owner, nil
	}
	if d.PartnerID != "" {
		return r.s.partnerOwners[d.PartnerID], nil
	}
	return "", nil
}
