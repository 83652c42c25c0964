package entity

import (
	"fmt"
	"time"
)

// StockKey identifica un grupo físico de stock: producto + ubicación + lote.
type StockKey struct {
	ProductIdentity string
	LocationID      string
	LotID           string
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s@%s#%s", k.ProductIdentity, k.LocationID, k.LotID)
}

// StockRecord es la fila desnormalizada de stock actual (caché derivada del ledger).
// Invariante: QuantityAvailable = QuantityTotal - QuantityReserved, ambos >= 0.
type StockRecord struct {
	ID                string
	ProductIdentity   string
	LocationID        string
	OwnerID           string
	LotID             string
	QuantityTotal     int
	QuantityReserved  int
	QuantityAvailable int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Key devuelve la clave (producto, ubicación, lote) del registro.
func (r *StockRecord) Key() StockKey {
	return StockKey{ProductIdentity: r.ProductIdentity, LocationID: r.LocationID, LotID: r.LotID}
}

// SetQuantities fija total y reservado y recalcula el disponible.
func (r *StockRecord) SetQuantities(total, reserved int) {
	r.QuantityTotal = total
	r.QuantityReserved = reserved
	r.QuantityAvailable = total - reserved
}

// Valid verifica la invariante de cantidades.
func (r *StockRecord) Valid() bool {
	return r.QuantityTotal >= 0 && r.QuantityReserved >= 0 &&
		r.QuantityAvailable >= 0 && r.QuantityAvailable == r.QuantityTotal-r.QuantityReserved
}

// StockFilter filtros opcionales para consultar stock disponible.
// Prefix=true interpreta ProductIdentity como prefijo (LWIN7/LWIN11).
type StockFilter struct {
	ProductIdentity string
	Prefix          bool
	LocationID      string
	OwnerID         string
	LotID           string
	Limit           int
}
