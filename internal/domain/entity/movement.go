package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType tipo de movimiento del ledger.
type MovementType string

// Tipos de movimiento de stock.
const (
	MovementReceive      MovementType = "receive"
	MovementPick         MovementType = "pick"
	MovementTransfer     MovementType = "transfer"
	MovementAdjust       MovementType = "adjust"
	MovementRepackOut    MovementType = "repack_out"
	MovementRepackIn     MovementType = "repack_in"
	MovementPalletAdd    MovementType = "pallet_add"
	MovementPalletRemove MovementType = "pallet_remove"
	MovementPalletMove   MovementType = "pallet_move"
)

// Valid indica si el tipo es conocido.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceive, MovementPick, MovementTransfer, MovementAdjust,
		MovementRepackOut, MovementRepackIn, MovementPalletAdd, MovementPalletRemove, MovementPalletMove:
		return true
	}
	return false
}

// Details es la metadata tipada de un movimiento (unión etiquetada por MovementType).
type Details interface {
	accepts(t MovementType) bool
}

// ReceiveDetails metadata de una recepción: envío/socio de origen y costo unitario opcional.
type ReceiveDetails struct {
	ShipmentID string           `json:"shipment_id,omitempty"`
	PartnerID  string           `json:"partner_id,omitempty"`
	UnitCost   *decimal.Decimal `json:"unit_cost,omitempty"`
}

// PickDetails metadata de un picking. ReservationID consume la reserva indicada.
type PickDetails struct {
	ReservationID string `json:"reservation_id,omitempty"`
	OrderID       string `json:"order_id,omitempty"`
}

type TransferDetails struct {
	Reason string `json:"reason,omitempty"`
}

// AdjustDetails metadata de un ajuste. Correction marca los ajustes escritos por las
// herramientas de reparación: se registran para auditoría y no cuentan en el replay.
type AdjustDetails struct {
	Reason     string `json:"reason,omitempty"`
	Correction bool   `json:"correction,omitempty"`
}

// RepackDetails enlaza las dos mitades (out/in) de un reempaque.
type RepackDetails struct {
	RepackID            string `json:"repack_id"`
	CounterpartIdentity string `json:"counterpart_identity,omitempty"`
}

type PalletDetails struct {
	PalletID string `json:"pallet_id"`
}

func (ReceiveDetails) accepts(t MovementType) bool  { return t == MovementReceive }
func (PickDetails) accepts(t MovementType) bool     { return t == MovementPick }
func (TransferDetails) accepts(t MovementType) bool { return t == MovementTransfer }
func (AdjustDetails) accepts(t MovementType) bool   { return t == MovementAdjust }
func (RepackDetails) accepts(t MovementType) bool {
	return t == MovementRepackOut || t == MovementRepackIn
}
func (PalletDetails) accepts(t MovementType) bool {
	return t == MovementPalletAdd || t == MovementPalletRemove || t == MovementPalletMove
}

// MovementEntry entrada inmutable del ledger. Quantity es positiva salvo en adjust,
// donde lleva signo. Los ajustes se aplican sobre ToLocation.
type MovementEntry struct {
	ID              string
	MovementType    MovementType
	ProductIdentity string
	FromLocation    string
	ToLocation      string
	Quantity        int
	LotID           string
	OwnerID         string
	Details         Details
	PerformedAt     time.Time
	PerformedBy     string
	CreatedAt       time.Time
}

// Effect variación firmada de cantidad sobre una clave de stock.
type Effect struct {
	Key   StockKey
	Delta int
}

func (m *MovementEntry) key(location string) StockKey {
	return StockKey{ProductIdentity: m.ProductIdentity, LocationID: location, LotID: m.LotID}
}

// Effects calcula el efecto firmado del movimiento por clave. Es la única definición
// usada tanto al aplicar movimientos como al reproducir el ledger.
func (m *MovementEntry) Effects() []Effect {
	switch m.MovementType {
	case MovementReceive, MovementRepackIn:
		return []Effect{{Key: m.key(m.ToLocation), Delta: m.Quantity}}
	case MovementPick, MovementRepackOut:
		return []Effect{{Key: m.key(m.FromLocation), Delta: -m.Quantity}}
	case MovementTransfer, MovementPalletMove:
		return []Effect{
			{Key: m.key(m.FromLocation), Delta: -m.Quantity},
			{Key: m.key(m.ToLocation), Delta: m.Quantity},
		}
	case MovementAdjust:
		return []Effect{{Key: m.key(m.ToLocation), Delta: m.Quantity}}
	}
	return nil
}

// ReplayEffects igual que Effects pero ignora los ajustes de corrección.
func (m *MovementEntry) ReplayEffects() []Effect {
	if m.IsCorrection() {
		return nil
	}
	return m.Effects()
}

// IsCorrection indica si es un ajuste escrito por las herramientas de reparación.
func (m *MovementEntry) IsCorrection() bool {
	d, ok := m.Details.(AdjustDetails)
	return ok && m.MovementType == MovementAdjust && d.Correction
}

// IsInbound indica si el movimiento origina stock nuevo para (producto, lote).
func (m *MovementEntry) IsInbound() bool {
	return m.MovementType == MovementReceive || m.MovementType == MovementRepackIn
}

// DetailsMatch verifica que la metadata corresponda al tipo (nil siempre es válido).
func DetailsMatch(t MovementType, d Details) bool {
	return d == nil || d.accepts(t)
}

// MarshalDetails serializa la metadata para la columna JSONB.
func MarshalDetails(d Details) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// UnmarshalDetails reconstruye la metadata tipada según el tipo de movimiento.
func UnmarshalDetails(t MovementType, raw []byte) (Details, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		d   Details
		err error
	)
	switch t {
	case MovementReceive:
		var v ReceiveDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case MovementPick:
		var v PickDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case MovementTransfer:
		var v TransferDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case MovementAdjust:
		var v AdjustDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case MovementRepackOut, MovementRepackIn:
		var v RepackDetails
		err = json.Unmarshal(raw, &v)
		d = v
	case MovementPalletAdd, MovementPalletRemove, MovementPalletMove:
		var v PalletDetails
		err = json.Unmarshal(raw, &v)
		d = v
	default:
		return nil, fmt.Errorf("tipo de movimiento desconocido %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", t, err)
	}
	return d, nil
}
