package entity_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

const wine = "101122720150600750"

func TestEffects_PorTipo(t *testing.T) {
	cases := []struct {
		name string
		m    entity.MovementEntry
		want []entity.Effect
	}{
		{
			name: "receive suma en destino",
			m:    entity.MovementEntry{MovementType: entity.MovementReceive, ProductIdentity: wine, ToLocation: "A1", LotID: "L1", Quantity: 5},
			want: []entity.Effect{{Key: entity.StockKey{ProductIdentity: wine, LocationID: "A1", LotID: "L1"}, Delta: 5}},
		},
		{
			name: "pick resta en origen",
			m:    entity.MovementEntry{MovementType: entity.MovementPick, ProductIdentity: wine, FromLocation: "A1", LotID: "L1", Quantity: 2},
			want: []entity.Effect{{Key: entity.StockKey{ProductIdentity: wine, LocationID: "A1", LotID: "L1"}, Delta: -2}},
		},
		{
			name: "transfer mueve entre ubicaciones",
			m:    entity.MovementEntry{MovementType: entity.MovementTransfer, ProductIdentity: wine, FromLocation: "A1", ToLocation: "B2", LotID: "L1", Quantity: 3},
			want: []entity.Effect{
				{Key: entity.StockKey{ProductIdentity: wine, LocationID: "A1", LotID: "L1"}, Delta: -3},
				{Key: entity.StockKey{ProductIdentity: wine, LocationID: "B2", LotID: "L1"}, Delta: 3},
			},
		},
		{
			name: "adjust negativo",
			m:    entity.MovementEntry{MovementType: entity.MovementAdjust, ProductIdentity: wine, ToLocation: "A1", LotID: "L1", Quantity: -1},
			want: []entity.Effect{{Key: entity.StockKey{ProductIdentity: wine, LocationID: "A1", LotID: "L1"}, Delta: -1}},
		},
		{
			name: "pallet_add no cambia cantidades",
			m:    entity.MovementEntry{MovementType: entity.MovementPalletAdd, ProductIdentity: wine, ToLocation: "A1", Quantity: 4},
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.m.Effects())
		})
	}
}

func TestReplayEffects_IgnoraCorrecciones(t *testing.T) {
	m := entity.MovementEntry{
		MovementType: entity.MovementAdjust, ProductIdentity: wine, ToLocation: "A1", Quantity: 7,
		Details: entity.AdjustDetails{Reason: "rebuild", Correction: true},
	}
	assert.True(t, m.IsCorrection())
	assert.Len(t, m.Effects(), 1)
	assert.Empty(t, m.ReplayEffects())
}

func TestDetails_TipoIncorrecto(t *testing.T) {
	assert.True(t, entity.DetailsMatch(entity.MovementPick, entity.PickDetails{}))
	assert.True(t, entity.DetailsMatch(entity.MovementRepackIn, entity.RepackDetails{RepackID: "r"}))
	assert.True(t, entity.DetailsMatch(entity.MovementTransfer, nil))
	assert.False(t, entity.DetailsMatch(entity.MovementReceive, entity.PickDetails{}))
}

func TestUnmarshalDetails_Receive(t *testing.T) {
	cost := decimal.RequireFromString("125.50")
	raw, err := entity.MarshalDetails(entity.ReceiveDetails{ShipmentID: "SH-1", UnitCost: &cost})
	require.NoError(t, err)

	d, err := entity.UnmarshalDetails(entity.MovementReceive, raw)
	require.NoError(t, err)
	rd, ok := d.(entity.ReceiveDetails)
	require.True(t, ok)
	assert.Equal(t, "SH-1", rd.ShipmentID)
	require.NotNil(t, rd.UnitCost)
	assert.True(t, cost.Equal(*rd.UnitCost))

	_, err = entity.UnmarshalDetails("bogus", raw)
	assert.Error(t, err)
}
