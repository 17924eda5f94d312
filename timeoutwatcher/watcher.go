// Package timeoutwatcher implements the Timeout Watcher, C10: a priority
// index of swaps by timeout-block-height, drained on every chain tick, plus
// a wall-clock ticker firing cooperativeClaimTimeout fallbacks.
package timeoutwatcher

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// Kind distinguishes which expiry handler a due entry belongs to, since
// the index is shared across submarine, reverse, and chain swaps (spec
// §4.10, SPEC_FULL.md "Expired-swap sweep batching").
type Kind int

const (
	KindSubmarine Kind = iota
	KindReverse
	KindChainSwap
)

// entry is one (swap, timeout height) pair in the priority index.
type entry struct {
	swapID    string
	currency  string
	height    uint32
	kind      Kind
	index     int
}

// heightHeap is a min-heap on (currency, height) so DrainDue can batch
// same-height entries cheaply (SPEC_FULL.md "Expired-swap sweep
// batching").
type heightHeap []*entry

func (h heightHeap) Len() int { return len(h) }
func (h heightHeap) Less(i, j int) bool {
	if h[i].currency != h[j].currency {
		return h[i].currency < h[j].currency
	}
	return h[i].height < h[j].height
}
func (h heightHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *heightHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *heightHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Batch groups due entries sharing a (currency, height) pair, so callers
// can sweep them together (SPEC_FULL.md "Expired-swap sweep batching").
type Batch struct {
	Currency string
	Height   uint32
	Kind     Kind
	SwapIDs  []string
}

// ExpiryHandlers lets the watcher hand off due swaps to the submarine and
// reverse state machines without importing them directly.
type ExpiryHandlers struct {
	Submarine func(batch Batch) error
	Reverse   func(batch Batch) error
	ChainSwap func(batch Batch) error

	// CooperativeClaimTimeout fires for a swap whose cooperative claim
	// window (wall-clock, not block-height) has elapsed (spec §4.6
	// "Claim path").
	CooperativeClaimTimeout func(swapID string) error
}

// Watcher maintains the priority index and drives both the block-height
// tick and the wall-clock cooperativeClaimTimeout fallback.
type Watcher struct {
	mu    sync.Mutex
	index heightHeap
	byID  map[string]*entry

	claimTimeouts map[string]time.Time

	clock   clock.Clock
	ticker  ticker.Ticker
	handlers ExpiryHandlers

	cooperativeClaimTimeout time.Duration

	quit chan struct{}
}

// New constructs a Watcher. wallClockInterval drives the
// cooperativeClaimTimeout sweep; block-height expiry runs only when Tick
// is called.
func New(clk clock.Clock, wallClockInterval time.Duration, cooperativeClaimTimeout time.Duration, handlers ExpiryHandlers) *Watcher {
	return &Watcher{
		index:                   make(heightHeap, 0),
		byID:                    make(map[string]*entry),
		claimTimeouts:           make(map[string]time.Time),
		clock:                   clk,
		ticker:                  ticker.New(wallClockInterval),
		handlers:                handlers,
		cooperativeClaimTimeout: cooperativeClaimTimeout,
		quit:                    make(chan struct{}),
	}
}

// Add registers swapID's timeout-block-height in the priority index (spec
// §4.10).
func (w *Watcher) Add(swapID, currency string, height uint32, kind Kind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.byID[swapID]; exists {
		return
	}
	e := &entry{swapID: swapID, currency: currency, height: height, kind: kind}
	heap.Push(&w.index, e)
	w.byID[swapID] = e
}

// Remove drops swapID from the priority index, called once a swap resolves
// before its timeout.
func (w *Watcher) Remove(swapID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.byID[swapID]
	if !ok {
		return
	}
	heap.Remove(&w.index, e.index)
	delete(w.byID, swapID)
}

// StartCooperativeClaimTimeout arms the wall-clock fallback for swapID:
// if no cooperative claim lands within cooperativeClaimTimeout, the caller
// falls back to a script-spend claim (spec §4.6 "Claim path").
func (w *Watcher) StartCooperativeClaimTimeout(swapID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.claimTimeouts[swapID] = w.clock.Now().Add(w.cooperativeClaimTimeout)
}

// CancelCooperativeClaimTimeout disarms the fallback once a cooperative
// claim has landed.
func (w *Watcher) CancelCooperativeClaimTimeout(swapID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.claimTimeouts, swapID)
}

// Tick drains every index entry whose height is <= currentHeight for
// currency, batched by (currency, height), and hands each batch to its
// kind's expiry handler (spec §4.10, SPEC_FULL.md batching supplement).
func (w *Watcher) Tick(currency string, currentHeight uint32) error {
	batches := w.drainDue(currency, currentHeight)
	for _, b := range batches {
		var err error
		switch b.Kind {
		case KindSubmarine:
			err = w.handlers.Submarine(b)
		case KindReverse:
			err = w.handlers.Reverse(b)
		case KindChainSwap:
			err = w.handlers.ChainSwap(b)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) drainDue(currency string, currentHeight uint32) []Batch {
	w.mu.Lock()
	defer w.mu.Unlock()

	grouped := make(map[string]*Batch)
	var order []string

	for len(w.index) > 0 && w.index[0].currency == currency && w.index[0].height <= currentHeight {
		e := heap.Pop(&w.index).(*entry)
		delete(w.byID, e.swapID)

		key := fmt.Sprintf("%d:%d", e.height, e.kind)
		b, ok := grouped[key]
		if !ok {
			b = &Batch{Currency: currency, Height: e.height, Kind: e.kind}
			grouped[key] = b
			order = append(order, key)
		}
		b.SwapIDs = append(b.SwapIDs, e.swapID)
	}

	out := make([]Batch, 0, len(order))
	for _, k := range order {
		out = append(out, *grouped[k])
	}
	return out
}

// Run starts the wall-clock loop firing cooperativeClaimTimeout for every
// armed swap whose deadline has passed. It blocks until Stop is called.
func (w *Watcher) Run() {
	w.ticker.Resume()
	defer w.ticker.Stop()

	for {
		select {
		case <-w.ticker.Ticks():
			w.sweepClaimTimeouts()
		case <-w.quit:
			return
		}
	}
}

func (w *Watcher) sweepClaimTimeouts() {
	now := w.clock.Now()

	w.mu.Lock()
	var due []string
	for swapID, deadline := range w.claimTimeouts {
		if !now.Before(deadline) {
			due = append(due, swapID)
			delete(w.claimTimeouts, swapID)
		}
	}
	w.mu.Unlock()

	for _, swapID := range due {
		if w.handlers.CooperativeClaimTimeout == nil {
			continue
		}
		if err := w.handlers.CooperativeClaimTimeout(swapID); err != nil {
			log.Errorf("cooperativeClaimTimeout handler failed for swap %s: %v", swapID, err)
		}
	}
}

// Stop halts the wall-clock loop.
func (w *Watcher) Stop() {
	close(w.quit)
}
