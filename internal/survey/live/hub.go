package live

import (
	"context"
	"sync"
	"time"

	"github.com/pavescan-data/surface.report/internal/metrics"
)

// Listener receives events for one job. Implementations must be comparable;
// the hub uses identity to guard against a stale detach removing a newer
// listener for the same job.
type Listener interface {
	Send(ctx context.Context, ev Event) error
	Close()
}

type delivery struct {
	id        string
	ev        Event
	broadcast bool
}

// Hub routes published events to the current listener of each job. At most
// one listener per job; attaching again replaces and closes the previous
// one. Publishing never blocks: when the queue is full the update is
// dropped and counted.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]Listener

	queue chan delivery
	done  chan struct{}
	wg    sync.WaitGroup

	sendTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewHub starts a hub with the given delivery queue size and per-send
// timeout. Close stops the dispatcher and closes remaining listeners.
func NewHub(queueSize int, sendTimeout time.Duration, m *metrics.Metrics) *Hub {
	if queueSize < 1 {
		queueSize = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	h := &Hub{
		listeners:   make(map[string]Listener),
		queue:       make(chan delivery, queueSize),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
		metrics:     m,
	}
	h.wg.Add(1)
	go h.dispatch()
	return h
}

// Attach registers the listener for a job, replacing and closing any
// previous one.
func (h *Hub) Attach(id string, l Listener) {
	h.mu.Lock()
	old := h.listeners[id]
	h.listeners[id] = l
	h.mu.Unlock()

	h.metrics.ListenersActive.Add(1)
	if old != nil {
		diagf("listener for %s replaced", id)
		old.Close()
		h.metrics.ListenersActive.Add(-1)
	}
}

// Detach removes the listener if it is still the current one for the job.
func (h *Hub) Detach(id string, l Listener) {
	h.mu.Lock()
	cur, ok := h.listeners[id]
	if ok && cur == l {
		delete(h.listeners, id)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if ok {
		h.metrics.ListenersActive.Add(-1)
	}
}

// Publish queues an event for delivery. Never blocks; a full queue drops
// the event.
func (h *Hub) Publish(id string, ev Event) {
	select {
	case h.queue <- delivery{id: id, ev: ev}:
	default:
		h.metrics.UpdatesDropped.Add(1)
		diagf("queue full, dropped %s event for %s", ev.Type, id)
	}
}

// Broadcast queues an event for every currently attached listener,
// regardless of job. Used for cross-cutting notices such as shutdown.
// Never blocks; a full queue drops the event.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.queue <- delivery{ev: ev, broadcast: true}:
	default:
		h.metrics.UpdatesDropped.Add(1)
		diagf("queue full, dropped broadcast %s event", ev.Type)
	}
}

func (h *Hub) dispatch() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case d := <-h.queue:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	if d.broadcast {
		h.mu.Lock()
		targets := make(map[string]Listener, len(h.listeners))
		for id, l := range h.listeners {
			targets[id] = l
		}
		h.mu.Unlock()

		for id, l := range targets {
			h.send(id, l, d.ev)
		}
		return
	}

	h.mu.Lock()
	l := h.listeners[d.id]
	h.mu.Unlock()

	if l == nil {
		// No listener attached; updates are best-effort.
		h.metrics.UpdatesDropped.Add(1)
		return
	}

	h.send(d.id, l, d.ev)
}

func (h *Hub) send(id string, l Listener, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	err := l.Send(ctx, ev)
	cancel()

	if err != nil {
		opsf("send %s event to %s failed: %v", ev.Type, id, err)
		h.metrics.UpdatesDropped.Add(1)
		h.drop(id, l)
		return
	}
	tracef("delivered %s event to %s", ev.Type, id)

	if ev.Terminal() {
		h.drop(id, l)
	}
}

// drop closes a listener and removes it if still current.
func (h *Hub) drop(id string, l Listener) {
	h.mu.Lock()
	if h.listeners[id] == l {
		delete(h.listeners, id)
		h.mu.Unlock()
		h.metrics.ListenersActive.Add(-1)
	} else {
		h.mu.Unlock()
	}
	l.Close()
}

// Close stops the dispatcher and closes all remaining listeners.
func (h *Hub) Close() {
	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	remaining := h.listeners
	h.listeners = make(map[string]Listener)
	h.mu.Unlock()

	for id, l := range remaining {
		l.Close()
		h.metrics.ListenersActive.Add(-1)
		diagf("closed listener for %s on shutdown", id)
	}
}
