package timeoutwatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) TickAfter(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.now.Add(d)
	return ch
}

func TestDrainDueBatchesByHeightAndKind(t *testing.T) {
	var submarineBatches, reverseBatches []Batch

	w := New(&fakeClock{}, time.Hour, time.Minute, ExpiryHandlers{
		Submarine: func(b Batch) error {
			submarineBatches = append(submarineBatches, b)
			return nil
		},
		Reverse: func(b Batch) error {
			reverseBatches = append(reverseBatches, b)
			return nil
		},
		ChainSwap: func(b Batch) error { return nil },
	})

	w.Add("s1", "BTC", 100, KindSubmarine)
	w.Add("s2", "BTC", 100, KindSubmarine)
	w.Add("s3", "BTC", 200, KindSubmarine)
	w.Add("r1", "BTC", 100, KindReverse)
	w.Add("future", "BTC", 500, KindSubmarine)

	require.NoError(t, w.Tick("BTC", 200))

	require.Len(t, submarineBatches, 2)
	require.Len(t, reverseBatches, 1)

	var height100 *Batch
	for i := range submarineBatches {
		if submarineBatches[i].Height == 100 {
			height100 = &submarineBatches[i]
		}
	}
	require.NotNil(t, height100)
	require.ElementsMatch(t, []string{"s1", "s2"}, height100.SwapIDs)

	// The not-yet-due entry should still be in the index.
	w.mu.Lock()
	_, stillThere := w.byID["future"]
	w.mu.Unlock()
	require.True(t, stillThere)
}

func TestRemoveBeforeTimeout(t *testing.T) {
	w := New(&fakeClock{}, time.Hour, time.Minute, ExpiryHandlers{
		Submarine: func(b Batch) error { return nil },
		Reverse:   func(b Batch) error { return nil },
		ChainSwap: func(b Batch) error { return nil },
	})

	w.Add("s1", "BTC", 100, KindSubmarine)
	w.Remove("s1")

	called := false
	w.handlers.Submarine = func(b Batch) error {
		called = true
		return nil
	}
	require.NoError(t, w.Tick("BTC", 200))
	require.False(t, called)
}

func TestCooperativeClaimTimeoutSweep(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}

	fired := make(chan string, 1)
	w := New(clk, time.Hour, time.Minute, ExpiryHandlers{
		Submarine: func(b Batch) error { return nil },
		Reverse:   func(b Batch) error { return nil },
		ChainSwap: func(b Batch) error { return nil },
		CooperativeClaimTimeout: func(swapID string) error {
			fired <- swapID
			return nil
		},
	})

	w.StartCooperativeClaimTimeout("swap1")
	clk.now = clk.now.Add(2 * time.Minute)
	w.sweepClaimTimeouts()

	select {
	case id := <-fired:
		require.Equal(t, "swap1", id)
	default:
		t.Fatal("expected cooperative claim timeout to fire")
	}
}
