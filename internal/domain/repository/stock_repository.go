package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockRecordRepository define el puerto para consultar/actualizar la caché de stock.
// Usado dentro y fuera de transacciones (ver TxRunner).
type StockRecordRepository interface {
	GetByID(ctx context.Context, id string) (*entity.StockRecord, error)
	// GetByIDForUpdate como GetByID pero bloquea la fila hasta el fin de la transacción.
	// Toda escritura de cantidades absolutas debe partir de una lectura bloqueada: TryReserve
	// no toma el candado de clave y escribiría en medio.
	GetByIDForUpdate(ctx context.Context, id string) (*entity.StockRecord, error)
	// LockKey serializa dentro de la transacción los cambios sobre una clave (producto, ubicación, lote).
	LockKey(ctx context.Context, key entity.StockKey) error
	// FindByKeyForUpdate devuelve el registro más antiguo de la clave bloqueado, o nil si no existe.
	FindByKeyForUpdate(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error)
	ListByKey(ctx context.Context, key entity.StockKey) ([]*entity.StockRecord, error)
	// ListByKeyForUpdate como ListByKey con todas las filas de la clave bloqueadas.
	ListByKeyForUpdate(ctx context.Context, key entity.StockKey) ([]*entity.StockRecord, error)
	// ListAvailable devuelve registros con disponible > 0, ordenados por disponible desc.
	ListAvailable(ctx context.Context, filter entity.StockFilter) ([]*entity.StockRecord, error)
	ListAll(ctx context.Context) ([]*entity.StockRecord, error)
	Create(ctx context.Context, rec *entity.StockRecord) error
	UpdateQuantities(ctx context.Context, rec *entity.StockRecord) error
	// TryReserve aplica la actualización condicional: reserva qty solo si el disponible
	// sigue siendo suficiente al momento de escribir. false = se perdió la carrera.
	TryReserve(ctx context.Context, id string, qty int) (bool, error)
	// ReleaseReserved devuelve qty reservada al disponible; false si la reserva no alcanza.
	ReleaseReserved(ctx context.Context, id string, qty int) (bool, error)
	Delete(ctx context.Context, id string) error
}
