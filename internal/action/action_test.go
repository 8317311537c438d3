package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	n, ok := ParseName("b5")
	require.True(t, ok)
	assert.Equal(t, B5, n)
	_, ok = ParseName("C7")
	assert.False(t, ok)

	assert.Equal(t, ModeToggle, ParseMode("toggle"))
	assert.Equal(t, ModeSingle, ParseMode("bogus"))
	assert.Equal(t, "CONTINUOUS", ModeContinuous.String())
}

func TestManualOutputs(t *testing.T) {
	t.Parallel()

	a := NewAuto(DefaultParams())
	a.Toggle(A2)
	a.Begin(B6)
	a.Single(A3)

	f := a.Flags()
	assert.Equal(t, Flags{false, true, true, false, false, true}, f)

	fired := a.TakeFired()
	assert.True(t, fired[A3])
	assert.False(t, a.Flags()[A3], "single fire is consumed")

	a.Toggle(A2)
	a.End(B6)
	assert.Equal(t, Flags{}, a.Flags())
}

func TestSingleMode(t *testing.T) {
	t.Parallel()

	a := NewAuto(Params{Name: A1, Mode: ModeSingle, Switch: 0, Length: 10})
	a.Enable()
	a.Start()
	require.True(t, a.Active())
	assert.True(t, a.Showing())
	assert.True(t, a.TakeFired()[A1], "start fires once")

	for i := 0; i < 5; i++ {
		a.Update(true)
	}
	assert.False(t, a.Showing(), "indicator is transient")
	assert.True(t, a.Active(), "stays active until the target is lost")
	assert.Equal(t, Flags{}, a.TakeFired(), "does not fire again")

	a.Stop()
	assert.False(t, a.Active())
}

func TestSeriesModeRefires(t *testing.T) {
	t.Parallel()

	a := NewAuto(Params{Name: B4, Mode: ModeSeries, Length: 3})
	a.Start()
	a.TakeFired()

	fires := 0
	for i := 0; i < 20; i++ {
		a.Update(true)
		if a.TakeFired()[B4] {
			fires++
		}
	}
	assert.GreaterOrEqual(t, fires, 3)
}

func TestContinuousModeEndsAndAsksForNextTarget(t *testing.T) {
	t.Parallel()

	a := NewAuto(Params{Name: A1, Mode: ModeContinuous, Length: 4})
	a.Start()
	assert.True(t, a.Toggled(A1))

	next := false
	for i := 0; i < 10 && !next; i++ {
		next = a.Update(true)
	}
	assert.True(t, next)
	assert.False(t, a.Toggled(A1))
	assert.False(t, a.Showing())
}

func TestToggleModeHoldsUntilStopped(t *testing.T) {
	t.Parallel()

	a := NewAuto(Params{Name: B5, Mode: ModeToggle, Length: 2})
	a.Start()
	for i := 0; i < 10; i++ {
		a.Update(true)
	}
	assert.True(t, a.Toggled(B5))
	assert.Greater(t, a.Counter(), 2, "counter keeps running for display")

	a.Stop()
	assert.False(t, a.Toggled(B5))
}

func TestSwitchIntervalRequestsNextTarget(t *testing.T) {
	t.Parallel()

	a := NewAuto(Params{Name: A1, Mode: ModeToggle, Switch: 3, Length: 100})
	a.Start()

	var hits []int
	for i := 1; i <= 9; i++ {
		if a.Update(false) {
			hits = append(hits, i)
		}
	}
	assert.Equal(t, []int{3, 6, 9}, hits)

	a.Start()
	for i := 0; i < 9; i++ {
		assert.False(t, a.Update(true), "single-target mode never switches")
	}
}
