package repository

import "context"

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza que el ledger y la caché de stock cambien juntos o no cambien.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		movRepo MovementRepository,
		stockRepo StockRecordRepository,
		resRepo ReservationRepository,
	) error) error
}
