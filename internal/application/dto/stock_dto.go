package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/stock"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// MovementRequest body para POST /api/stock/movements. Details depende de movement_type
// (receive: shipment_id, partner_id, unit_cost; pick: reservation_id; repack_*: repack_id; pallet_*: pallet_id).
type MovementRequest struct {
	MovementType    string          `json:"movement_type"`
	ProductIdentity string          `json:"product_identity"`
	FromLocation    string          `json:"from_location,omitempty"`
	ToLocation      string          `json:"to_location,omitempty"`
	Quantity        int             `json:"quantity"`
	LotID           string          `json:"lot_id,omitempty"`
	OwnerID         string          `json:"owner_id,omitempty"`
	PerformedAt     *time.Time      `json:"performed_at,omitempty"`
	Details         json.RawMessage `json:"details,omitempty" swaggertype:"object"`
}

// BatchMovementRequest body para POST /api/stock/movements/batch.
type BatchMovementRequest struct {
	Movements []MovementRequest `json:"movements"`
}

// ToInput convierte la petición; performedBy es el usuario del token.
func (r MovementRequest) ToInput(performedBy string) (stock.MovementInput, error) {
	in := stock.MovementInput{
		MovementType:    entity.MovementType(r.MovementType),
		ProductIdentity: r.ProductIdentity,
		FromLocation:    r.FromLocation,
		ToLocation:      r.ToLocation,
		Quantity:        r.Quantity,
		LotID:           r.LotID,
		OwnerID:         r.OwnerID,
		PerformedBy:     performedBy,
	}
	if r.PerformedAt != nil {
		in.PerformedAt = *r.PerformedAt
	}
	if len(r.Details) > 0 && in.MovementType.Valid() {
		d, err := entity.UnmarshalDetails(in.MovementType, r.Details)
		if err != nil {
			return in, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		in.Details = d
	}
	return in, nil
}

// StockRecordResponse registro de la caché de stock.
type StockRecordResponse struct {
	ID                string    `json:"id"`
	ProductIdentity   string    `json:"product_identity"`
	LocationID        string    `json:"location_id"`
	OwnerID           string    `json:"owner_id"`
	LotID             string    `json:"lot_id"`
	QuantityTotal     int       `json:"quantity_total"`
	QuantityReserved  int       `json:"quantity_reserved"`
	QuantityAvailable int       `json:"quantity_available"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func FromStockRecord(r *entity.StockRecord) StockRecordResponse {
	return StockRecordResponse{
		ID:                r.ID,
		ProductIdentity:   r.ProductIdentity,
		LocationID:        r.LocationID,
		OwnerID:           r.OwnerID,
		LotID:             r.LotID,
		QuantityTotal:     r.QuantityTotal,
		QuantityReserved:  r.QuantityReserved,
		QuantityAvailable: r.QuantityAvailable,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func FromStockRecords(list []*entity.StockRecord) []StockRecordResponse {
	out := make([]StockRecordResponse, 0, len(list))
	for _, r := range list {
		out = append(out, FromStockRecord(r))
	}
	return out
}

// MovementResponse entrada del ledger.
type MovementResponse struct {
	ID              string         `json:"id"`
	MovementType    string         `json:"movement_type"`
	ProductIdentity string         `json:"product_identity"`
	FromLocation    string         `json:"from_location,omitempty"`
	ToLocation      string         `json:"to_location,omitempty"`
	Quantity        int            `json:"quantity"`
	LotID           string         `json:"lot_id,omitempty"`
	OwnerID         string         `json:"owner_id,omitempty"`
	Details         entity.Details `json:"details,omitempty" swaggertype:"object"`
	PerformedAt     time.Time      `json:"performed_at"`
	PerformedBy     string         `json:"performed_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func FromMovement(m *entity.MovementEntry) MovementResponse {
	return MovementResponse{
		ID:              m.ID,
		MovementType:    string(m.MovementType),
		ProductIdentity: m.ProductIdentity,
		FromLocation:    m.FromLocation,
		ToLocation:      m.ToLocation,
		Quantity:        m.Quantity,
		LotID:           m.LotID,
		OwnerID:         m.OwnerID,
		Details:         m.Details,
		PerformedAt:     m.PerformedAt,
		PerformedBy:     m.PerformedBy,
		CreatedAt:       m.CreatedAt,
	}
}

func FromMovements(list []*entity.MovementEntry) []MovementResponse {
	out := make([]MovementResponse, 0, len(list))
	for _, m := range list {
		out = append(out, FromMovement(m))
	}
	return out
}
