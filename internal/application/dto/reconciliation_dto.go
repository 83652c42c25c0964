package dto

// DedupeRequest body para POST /api/admin/deduplicate. Mode vacío = modo configurado.
type DedupeRequest struct {
	Mode string `json:"mode,omitempty" example:"keep_earliest"`
}

// ClearRequest body para POST /api/admin/clear.
type ClearRequest struct {
	Confirm bool `json:"confirm"`
}

// ClearResponse filas borradas por tabla.
type ClearResponse struct {
	Deleted map[string]int64 `json:"deleted"`
}
