package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashClearsItself(t *testing.T) {
	var mu sync.Mutex
	var changes []bool
	f := NewFlash(func(active bool) {
		mu.Lock()
		changes = append(changes, active)
		mu.Unlock()
	})
	f.duration = 10 * time.Millisecond

	f.Trigger()
	assert.True(t, f.Active())

	require.Eventually(t, func() bool { return !f.Active() }, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, changes)
}

func TestFlashRetriggerRestartsWindow(t *testing.T) {
	var mu sync.Mutex
	var changes []bool
	f := NewFlash(func(active bool) {
		mu.Lock()
		changes = append(changes, active)
		mu.Unlock()
	})
	f.duration = 100 * time.Millisecond

	f.Trigger()
	time.Sleep(60 * time.Millisecond)
	f.Trigger()
	time.Sleep(60 * time.Millisecond)

	assert.True(t, f.Active())
	mu.Lock()
	assert.Equal(t, []bool{true}, changes, "a retrigger while showing must not flip the flag")
	mu.Unlock()

	require.Eventually(t, func() bool { return !f.Active() }, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, changes)
}

func TestFlashDefaultDuration(t *testing.T) {
	assert.Equal(t, 150*time.Millisecond, NewFlash(nil).duration)
}
