package entity

// ReconcileSummary totales globales del ledger frente a la caché. Discrepancy = Actual - Expected.
type ReconcileSummary struct {
	MovementsReceived int  `json:"movements_received"`
	MovementsPicked   int  `json:"movements_picked"`
	MovementsAdjusted int  `json:"movements_adjusted"`
	ExpectedStock     int  `json:"expected_stock"`
	ActualStock       int  `json:"actual_stock"`
	Discrepancy       int  `json:"discrepancy"`
	IsReconciled      bool `json:"is_reconciled"`
}

// Drift diferencia en una clave concreta entre lo que reproduce el ledger y lo que tiene la caché.
type Drift struct {
	ProductIdentity string `json:"product_identity"`
	LocationID      string `json:"location_id"`
	LotID           string `json:"lot_id"`
	Expected        int    `json:"expected"`
	Actual          int    `json:"actual"`
	Discrepancy     int    `json:"discrepancy"`
}

// OrphanRecord registro cuyo (producto, lote) no tiene ninguna entrada de ingreso en el ledger.
type OrphanRecord struct {
	StockRecordID   string `json:"stock_record_id"`
	ProductIdentity string `json:"product_identity"`
	LocationID      string `json:"location_id"`
	LotID           string `json:"lot_id"`
	QuantityTotal   int    `json:"quantity_total"`
}

// DuplicateGroup registros que comparten la clave (producto, ubicación, lote).
type DuplicateGroup struct {
	ProductIdentity string   `json:"product_identity"`
	LocationID      string   `json:"location_id"`
	LotID           string   `json:"lot_id"`
	RecordIDs       []string `json:"record_ids"`
	TotalQuantity   int      `json:"total_quantity"`
}

type ReconcileIssues struct {
	OrphanRecords   []OrphanRecord   `json:"orphan_records"`
	DuplicateGroups []DuplicateGroup `json:"duplicate_groups"`
	Drifts          []Drift          `json:"drifts"`
}

// ReconcileReport resultado de una conciliación. La deriva es un dato para el operador.
type ReconcileReport struct {
	Summary ReconcileSummary `json:"summary"`
	Issues  ReconcileIssues  `json:"issues"`
}

// RebuildResult resultado de reconstruir la caché desde el ledger.
type RebuildResult struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Errors    []string `json:"errors"`
}

// DedupeDetail resultado por grupo duplicado. IntegrityRisk no vacío = grupo omitido.
type DedupeDetail struct {
	ProductIdentity       string   `json:"product_identity"`
	LocationID            string   `json:"location_id"`
	LotID                 string   `json:"lot_id"`
	KeptID                string   `json:"kept_id"`
	DeletedIDs            []string `json:"deleted_ids"`
	Strategy              string   `json:"strategy"`
	Quantity              int      `json:"quantity"`
	RepointedReservations int      `json:"repointed_reservations"`
	IntegrityRisk         string   `json:"integrity_risk,omitempty"`
}

type DedupeResult struct {
	Mode              string         `json:"mode"`
	DeduplicatedCount int            `json:"deduplicated_count"`
	DeletedCount      int            `json:"deleted_count"`
	Details           []DedupeDetail `json:"details"`
}
