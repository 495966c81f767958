package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerSeededFromZero(t *testing.T) {
	var tr Tracker

	require.Equal(t, Delta{DX: -1, DY: -1, DZ: -1}, tr.Update(Vector{X: 1, Y: 1, Z: 1}))
	require.Equal(t, Delta{DX: -2, DY: -2, DZ: -2}, tr.Update(Vector{X: 3, Y: 3, Z: 3}))
	require.Equal(t, Vector{X: 3, Y: 3, Z: 3}, tr.Previous())
}

func TestTrackerOrderDependent(t *testing.T) {
	var forward, reverse Tracker

	f1 := forward.Update(Vector{X: 1, Y: 1, Z: 1})
	f2 := forward.Update(Vector{X: 3, Y: 3, Z: 3})

	r1 := reverse.Update(Vector{X: 3, Y: 3, Z: 3})
	r2 := reverse.Update(Vector{X: 1, Y: 1, Z: 1})

	require.Equal(t, Delta{DX: -3, DY: -3, DZ: -3}, r1)
	require.Equal(t, Delta{DX: 2, DY: 2, DZ: 2}, r2)
	require.NotEqual(t, []Delta{f1, f2}, []Delta{r1, r2})
}

func TestTrackerReset(t *testing.T) {
	var tr Tracker
	tr.Update(Vector{X: 5, Y: -2, Z: 9})
	tr.Reset()

	require.Equal(t, Vector{}, tr.Previous())
	require.Equal(t, Delta{DX: -1, DY: 0, DZ: 0}, tr.Update(Vector{X: 1}))
}

func TestDeltaAxesOrder(t *testing.T) {
	axes := Delta{DX: 1, DY: 2, DZ: 3}.Axes()
	require.Equal(t, []AxisValue{{"x", 1}, {"y", 2}, {"z", 3}}, axes)
}
