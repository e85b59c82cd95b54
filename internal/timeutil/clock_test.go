package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClockNowAndSet(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestMockClockAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(0, 0))
	ch := c.After(time.Minute)
	require.Equal(t, 1, c.Waiters())

	select {
	case <-ch:
		t.Fatal("waiter fired before the deadline")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("waiter fired halfway to the deadline")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case now := <-ch:
		assert.Equal(t, time.Unix(60, 0), now)
	default:
		t.Fatal("waiter did not fire at the deadline")
	}
	assert.Zero(t, c.Waiters())
}

func TestMockClockAfterNonPositive(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(100, 0))
	select {
	case now := <-c.After(0):
		assert.Equal(t, time.Unix(100, 0), now)
	default:
		t.Fatal("zero-duration After should fire immediately")
	}
}

func TestRealClockAfter(t *testing.T) {
	t.Parallel()

	select {
	case <-RealClock{}.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("real clock After did not fire")
	}
}
