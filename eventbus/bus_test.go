package eventbus

import (
	"testing"

	"github.com/lightninglabs/swapd/swapdb"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	b := New()

	ch1, cancel1 := b.Subscribe("swap1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("swap1")
	defer cancel2()

	b.Publish(&Event{SwapID: "swap1", Status: swapdb.StatusTransactionMempool})

	require.Equal(t, swapdb.StatusTransactionMempool, (<-ch1).Status)
	require.Equal(t, swapdb.StatusTransactionMempool, (<-ch2).Status)
}

func TestSubscribeReplaysLatest(t *testing.T) {
	b := New()
	b.Publish(&Event{SwapID: "swap1", Status: swapdb.StatusSwapCreated})

	ch, cancel := b.Subscribe("swap1")
	defer cancel()

	evt := <-ch
	require.Equal(t, swapdb.StatusSwapCreated, evt.Status)
}

func TestPublishIgnoresOtherSwaps(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("swap1")
	defer cancel()

	b.Publish(&Event{SwapID: "swap2", Status: swapdb.StatusSwapCreated})

	select {
	case <-ch:
		t.Fatal("subscriber for swap1 should not receive swap2 events")
	default:
	}
}

func TestLaggingSubscriberDropped(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe("swap1")

	for i := 0; i < subscriberQueueDepth+10; i++ {
		b.Publish(&Event{SwapID: "swap1", Status: swapdb.StatusTransactionMempool})
	}

	// Channel should eventually be closed after the subscriber is
	// dropped for lagging; drain it and confirm it closes rather than
	// blocking forever.
	drained := 0
	for range ch {
		drained++
		if drained > subscriberQueueDepth+10 {
			t.Fatal("channel did not close after lagging subscriber was dropped")
		}
	}
}
