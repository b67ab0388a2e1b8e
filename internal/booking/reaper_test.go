package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceRemovesOnlyExpired(t *testing.T) {
	locks := newMemLockStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	mk := func(expiresAt time.Time) {
		_, err := locks.Create(ctx, SlotReservation{
			ID:             uuid.New(),
			PractitionerID: uuid.New(),
			SlotTime:       now.Add(24 * time.Hour),
			HolderID:       uuid.New(),
			ExpiresAt:      expiresAt,
		})
		require.NoError(t, err)
	}

	mk(now.Add(-time.Minute))
	mk(now.Add(-time.Second))
	mk(now.Add(DefaultReservationTTL))

	r := NewReaper(locks, time.Minute)
	r.now = func() time.Time { return now }

	n, err := r.SweepOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 1, locks.count())

	// A second sweep finds nothing.
	n, err = r.SweepOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	locks := newMemLockStore()
	r := NewReaper(locks, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func TestNewReaperDefaultsInterval(t *testing.T) {
	r := NewReaper(newMemLockStore(), 0)
	assert.Equal(t, DefaultReaperInterval, r.interval)
}
