package stock

import (
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/lwin"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ValidateMovement verifica la forma del movimiento antes de abrir la transacción.
// Los ajustes de corrección solo los escriben las herramientas de reparación.
func ValidateMovement(in MovementInput) error {
	if !in.MovementType.Valid() {
		return invalid("tipo de movimiento %q desconocido", in.MovementType)
	}
	id, err := lwin.Parse(in.ProductIdentity)
	if err != nil {
		return invalid("%v", err)
	}
	if id.IsPartial() {
		return invalid("los movimientos requieren un código LWIN18 completo, recibido %q", in.ProductIdentity)
	}
	if !entity.DetailsMatch(in.MovementType, in.Details) {
		return invalid("metadata %T no corresponde a %s", in.Details, in.MovementType)
	}

	switch in.MovementType {
	case entity.MovementAdjust:
		if in.Quantity == 0 {
			return invalid("un ajuste requiere cantidad distinta de cero")
		}
	default:
		if in.Quantity <= 0 {
			return invalid("la cantidad debe ser positiva")
		}
	}

	switch in.MovementType {
	case entity.MovementReceive, entity.MovementRepackIn, entity.MovementAdjust:
		if in.ToLocation == "" {
			return invalid("%s requiere ubicación destino", in.MovementType)
		}
	case entity.MovementPick, entity.MovementRepackOut:
		if in.FromLocation == "" {
			return invalid("%s requiere ubicación origen", in.MovementType)
		}
	case entity.MovementTransfer, entity.MovementPalletMove:
		if in.FromLocation == "" || in.ToLocation == "" {
			return invalid("%s requiere ubicación origen y destino", in.MovementType)
		}
		if in.FromLocation == in.ToLocation {
			return invalid("origen y destino iguales")
		}
	}

	switch d := in.Details.(type) {
	case entity.AdjustDetails:
		if d.Correction {
			return invalid("los ajustes de corrección no se registran manualmente")
		}
	case entity.RepackDetails:
		if d.RepackID == "" {
			return invalid("reempaque sin repack_id")
		}
	case entity.PalletDetails:
		if d.PalletID == "" {
			return invalid("movimiento de pallet sin pallet_id")
		}
	case entity.ReceiveDetails:
		if d.UnitCost != nil && d.UnitCost.IsNegative() {
			return invalid("costo unitario negativo")
		}
	}
	switch in.MovementType {
	case entity.MovementPalletAdd, entity.MovementPalletRemove, entity.MovementPalletMove:
		if in.Details == nil {
			return invalid("%s requiere pallet_id", in.MovementType)
		}
	case entity.MovementRepackOut, entity.MovementRepackIn:
		if in.Details == nil {
			return invalid("%s requiere repack_id", in.MovementType)
		}
	}
	return nil
}
