package server

import (
	"sync"

	"github.com/bcmpchat/bcmp/pkg/protocol"
	"github.com/bcmpchat/bcmp/pkg/session"
)

// Envelope is one routed message. A nil To means broadcast to every
// registry entry, including the author's own session (clients see their own
// messages echoed back; that is intended behavior). Directed delivery is an
// unimplemented extension point: no code path sets To, and the router drops
// targeted envelopes rather than fabricating semantics for them.
type Envelope struct {
	Msg protocol.Msg
	To  *string
}

// Router fans queued messages out to registered sessions. A single consumer
// drains the queue in FIFO order, so broadcasts from concurrent senders are
// interleaved in arrival order.
type Router struct {
	queue    chan Envelope
	registry *Registry
	metrics  *Metrics
	done     chan struct{}
	once     sync.Once
}

// NewRouter creates a router over the given registry. metrics may be nil.
func NewRouter(registry *Registry, metrics *Metrics) *Router {
	return &Router{
		queue:    make(chan Envelope, 32),
		registry: registry,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

// Broadcast queues msg for delivery to every registered session. It blocks
// only while the queue is full; once the router is stopped the message is
// discarded so callers never wait on a consumer that is gone.
func (r *Router) Broadcast(msg protocol.Msg) {
	select {
	case r.queue <- Envelope{Msg: msg}:
	case <-r.done:
	}
}

// Run drains the queue until Stop is called. Individual send failures are
// ignored so one unreachable peer cannot stall delivery to the rest; the
// failed peer's own read loop handles its teardown.
func (r *Router) Run() {
	for {
		select {
		case <-r.done:
			return
		case env := <-r.queue:
			if env.To != nil {
				debugLog.Printf("Dropping targeted envelope for %q (directed delivery not implemented)", *env.To)
				continue
			}

			fanout := 0
			r.registry.Each(func(nick string, w *session.WriteHalf) {
				if err := w.Send(env.Msg); err != nil {
					debugLog.Printf("Broadcast to %q failed (code=%d): %v", nick, env.Msg.Code(), err)
				}
				fanout++
			})

			if r.metrics != nil {
				r.metrics.RecordBroadcast(env.Msg.Code(), fanout)
			}
		}
	}
}

// Stop terminates the consumer. Queued but undelivered envelopes are
// discarded.
func (r *Router) Stop() {
	r.once.Do(func() { close(r.done) })
}
