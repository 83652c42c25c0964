package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// MaintenanceRepository operaciones destructivas de reinicio (solo pre-lanzamiento).
type MaintenanceRepository interface {
	// ClearAll anula los enlaces externos a stock y borra las tablas del núcleo en orden
	// de dependencia (hijos antes que padres). Devuelve filas afectadas por tabla.
	ClearAll(ctx context.Context) (map[string]int64, error)
}

// OwnerRepository resuelve el propietario de una recepción a partir de su envío/socio.
type OwnerRepository interface {
	// OwnerForReceive devuelve "" si el envío/socio no tiene propietario conocido.
	OwnerForReceive(ctx context.Context, receive *entity.MovementEntry) (string, error)
}
