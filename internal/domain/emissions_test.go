package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmissionKG(t *testing.T) {
	require.InDelta(t, 1566.1, EmissionKG(1000, 500), 1e-9)
	require.Zero(t, EmissionKG(0, 0))
}

func TestEmissionTons_Rounding(t *testing.T) {
	require.Equal(t, int64(2), EmissionTons(1566.1))
	require.Equal(t, int64(0), EmissionTons(499.9))
	require.Equal(t, int64(1), EmissionTons(500))
	require.Equal(t, int64(1), EmissionTons(1499.99))
}

func TestNewGreenhouseSnapshot(t *testing.T) {
	s := NewGreenhouseSnapshot(EnergyTotals{Year: 2026, ElectricityTotal: 1000, GasTotal: 500})

	require.Equal(t, 2026, s.Year)
	require.Equal(t, 1566.1, s.EmissionKG)
	require.Equal(t, int64(2), s.EmissionTons)
}

func TestActionForRevision(t *testing.T) {
	require.Equal(t, ActionCreated, ActionForRevision(1))
	require.Equal(t, ActionUpdated, ActionForRevision(2))
	require.Equal(t, ActionUpdated, ActionForRevision(17))
}
