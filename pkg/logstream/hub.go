// Package logstream pushes the logs of committed transactions to observers.
//
// The Hub fans published logs out to in-process subscriptions. Server exposes
// the hub as a server-streaming gRPC service, and Client consumes it. Messages
// are JSON encoded, so no generated protobuf code is involved.
package logstream

import (
	"sync"
	"sync/atomic"

	"github.com/fortiblox/stratus-builtins/internal/logging"
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"go.uber.org/zap"
)

// DefaultBufferSize is the default event buffer of one subscription.
const DefaultBufferSize = 256

// Event is one log of a committed transaction.
type Event struct {
	Sequence uint64     `json:"sequence"`
	TxHash   types.Hash `json:"txHash"`
	Index    uint32     `json:"index"`
	Log      vm.TxLog   `json:"log"`
}

// Filter selects the events a subscription receives. Empty fields match
// everything.
type Filter struct {
	Addresses []types.Address `json:"addresses,omitempty"`
	Endpoints []string        `json:"endpoints,omitempty"`
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev *Event) bool {
	if len(f.Addresses) > 0 {
		found := false
		for _, a := range f.Addresses {
			if a == ev.Log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Endpoints) > 0 {
		for _, e := range f.Endpoints {
			if e == ev.Log.Endpoint {
				return true
			}
		}
		return false
	}
	return true
}

// Subscription receives matching events on C until it is closed.
type Subscription struct {
	C <-chan *Event

	id      uint64
	ch      chan *Event
	filter  Filter
	hub     *Hub
	dropped atomic.Uint64
	once    sync.Once
}

// Dropped returns the number of events discarded because the subscriber
// did not keep up.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

// Hub broadcasts published logs to subscriptions. It is safe for concurrent
// use.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	log    *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[uint64]*Subscription),
		log:  logging.OrNop(logger),
	}
}

// Subscribe registers a subscription with the given buffer size.
func (h *Hub) Subscribe(filter Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	ch := make(chan *Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{C: ch, id: h.nextID, ch: ch, filter: filter, hub: h}
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub.id] = sub
	h.log.Debug("log subscription added", zap.Uint64("id", sub.id), zap.Int("subscribers", len(h.subs)))
	return sub
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Publish delivers the logs of transaction seq to every matching
// subscription. Full subscriptions drop the event instead of blocking.
func (h *Hub) Publish(txHash types.Hash, seq uint64, logs []vm.TxLog) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || len(h.subs) == 0 {
		return
	}

	for i := range logs {
		ev := &Event{Sequence: seq, TxHash: txHash, Index: uint32(i), Log: logs[i]}
		for _, sub := range h.subs {
			if !sub.filter.Match(ev) {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				sub.dropped.Add(1)
				h.log.Warn("log subscriber lagging, event dropped",
					zap.Uint64("id", sub.id), zap.Uint64("sequence", seq))
			}
		}
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
