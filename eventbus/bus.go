// Package eventbus implements the Event Bus, C9: every successful setStatus
// call is fanned out per swap-id to a bounded-lag, lossless stream of
// subscribers, who may also replay the latest status on first subscribe.
package eventbus

import (
	"sync"

	"github.com/lightninglabs/swapd/swapdb"
	"github.com/prometheus/client_golang/prometheus"
)

// subscriberQueueDepth bounds how far a subscriber may lag before it's
// dropped (spec §4.9, "bounded-lag"); within that bound delivery is
// lossless.
const subscriberQueueDepth = 64

// Event is published for every successful status transition (spec §4.9).
type Event struct {
	SwapID string
	Status swapdb.SwapStatus
	Extra  interface{}
}

var (
	subscriberGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swapd",
		Subsystem: "eventbus",
		Name:      "subscribers",
		Help:      "Number of active event bus subscribers.",
	})
	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swapd",
		Subsystem: "eventbus",
		Name:      "dropped_total",
		Help:      "Number of subscribers dropped for lagging beyond the bounded queue.",
	})
)

func init() {
	prometheus.MustRegister(subscriberGauge, droppedCounter)
}

type subscriber struct {
	ch     chan *Event
	swapID string
}

// Bus fans out status events per swap-id (spec §4.9).
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	latest map[string]*Event
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		subs:   make(map[string]map[*subscriber]struct{}),
		latest: make(map[string]*Event),
	}
}

// Publish fans evt out to every subscriber of evt.SwapID and records it as
// that swap's latest event for future subscribers (spec §4.9).
func (b *Bus) Publish(evt *Event) {
	b.mu.Lock()
	b.latest[evt.SwapID] = evt
	subs := make([]*subscriber, 0, len(b.subs[evt.SwapID]))
	for s := range b.subs[evt.SwapID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			// Subscriber has fallen more than subscriberQueueDepth
			// events behind; drop it rather than let one slow
			// reader apply backpressure to every publisher.
			log.Warnf("eventbus: dropping lagging subscriber for swap %s", evt.SwapID)
			droppedCounter.Inc()
			b.unsubscribe(s)
			close(s.ch)
		}
	}
}

// Subscribe registers a new subscriber for swapID and, if a status has
// already been published for it, replays that latest event immediately
// (spec §4.9, "late subscribers may replay the latest status only").
func (b *Bus) Subscribe(swapID string) (<-chan *Event, func()) {
	s := &subscriber{
		ch:     make(chan *Event, subscriberQueueDepth),
		swapID: swapID,
	}

	b.mu.Lock()
	if b.subs[swapID] == nil {
		b.subs[swapID] = make(map[*subscriber]struct{})
	}
	b.subs[swapID][s] = struct{}{}
	latest, ok := b.latest[swapID]
	b.mu.Unlock()

	subscriberGauge.Inc()

	if ok {
		s.ch <- latest
	}

	return s.ch, func() { b.unsubscribe(s) }
}

func (b *Bus) unsubscribe(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[s.swapID]; ok {
		if _, present := set[s]; present {
			delete(set, s)
			subscriberGauge.Dec()
		}
		if len(set) == 0 {
			delete(b.subs, s.swapID)
		}
	}
}
