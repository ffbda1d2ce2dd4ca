package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake_FiresInDueOrder(t *testing.T) {
	f := NewFake()
	var order []string

	f.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	f.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	f.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })

	f.Advance(25 * time.Millisecond)
	require.Equal(t, []string{"a", "b"}, order)

	f.Advance(5 * time.Millisecond)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFake_StopPreventsFiring(t *testing.T) {
	f := NewFake()
	fired := false
	tm := f.AfterFunc(10*time.Millisecond, func() { fired = true })

	require.True(t, tm.Stop())
	require.False(t, tm.Stop(), "second stop reports nothing to cancel")

	f.Advance(time.Second)
	require.False(t, fired)
}

func TestFake_CallbackMaySchedule(t *testing.T) {
	f := NewFake()
	var fired []string

	f.AfterFunc(10*time.Millisecond, func() {
		fired = append(fired, "first")
		f.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "chained") })
	})

	f.Advance(20 * time.Millisecond)
	require.Equal(t, []string{"first", "chained"}, fired)
	require.Equal(t, 20*time.Millisecond, f.Now().Sub(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
