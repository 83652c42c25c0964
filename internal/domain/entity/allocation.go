package entity

// Motivos por los que una línea de pedido no se procesó.
const (
	SkipAlreadyReserved     = "already_reserved"
	SkipConcurrentAllocated = "concurrent_allocation"
)

// AllocatedLine un tramo reservado: una línea de pedido puede aparecer varias veces si se reparte entre lotes.
type AllocatedLine struct {
	OrderItemID     string `json:"order_item_id"`
	ReservationID   string `json:"reservation_id"`
	StockRecordID   string `json:"stock_record_id"`
	ProductIdentity string `json:"product_identity"`
	LocationID      string `json:"location_id"`
	LotID           string `json:"lot_id"`
	Line            int    `json:"line"`
	Quantity        int    `json:"quantity"`
}

// Shortfall demanda no cubierta. Es un dato, no un error.
type Shortfall struct {
	OrderItemID       string `json:"order_item_id"`
	ProductIdentity   string `json:"product_identity"`
	QuantityRequested int    `json:"quantity_requested"`
	QuantityReserved  int    `json:"quantity_reserved"`
	Shortfall         int    `json:"shortfall"`
}

type SkippedItem struct {
	OrderItemID string `json:"order_item_id"`
	Reason      string `json:"reason"`
}

// AllocationResult resultado transitorio de una llamada de reserva; nunca se persiste.
type AllocationResult struct {
	Reserved []AllocatedLine `json:"reserved"`
	Short    []Shortfall     `json:"short"`
	Skipped  []SkippedItem   `json:"skipped"`
}

// ReservedFor suma lo reservado para una línea de pedido en este resultado.
func (r *AllocationResult) ReservedFor(orderItemID string) int {
	total := 0
	for _, l := range r.Reserved {
		if l.OrderItemID == orderItemID {
			total += l.Quantity
		}
	}
	return total
}
