// Package queue implements the single-writer update pipeline that feeds
// the active Bloom filter: many producers (workers, the rotation timer,
// the syncmgr) enqueue messages; one consumer goroutine applies them to
// the ring in FIFO order.
package queue

import (
	"context"
	"fmt"

	"github.com/ocx/greyd/internal/fingerprint"
	"github.com/ocx/greyd/internal/metrics"
	"github.com/ocx/greyd/internal/ring"
)

// Tag identifies the kind of message carried on the queue.
type Tag int

const (
	Update Tag = iota
	Rotate
	AbsoluteUpdate
	SyncAggregate
	UpdateOper
)

func (t Tag) String() string {
	switch t {
	case Update:
		return "UPDATE"
	case Rotate:
		return "ROTATE"
	case AbsoluteUpdate:
		return "ABSOLUTE_UPDATE"
	case SyncAggregate:
		return "SYNC_AGGREGATE"
	case UpdateOper:
		return "UPDATE_OPER"
	default:
		return fmt.Sprintf("TAG(%d)", int(t))
	}
}

// Message is the tagged union carried on the queue. Only the fields
// relevant to Tag are populated.
type Message struct {
	Tag         Tag
	Digest      fingerprint.Digest // Update, AbsoluteUpdate, UpdateOper
	FilterIndex int                // SyncAggregate
	FilterBytes []byte             // SyncAggregate
}

// Queue is a bounded FIFO of update messages with asymmetric overflow
// policy: local worker producers fail fast on overflow (the decision
// they represent is already logged); the rotation timer blocks, because
// losing a rotation tick would silently widen the greylisting window.
type Queue struct {
	ch      chan Message
	metrics *metrics.Metrics
}

// New creates a queue with the given buffer capacity.
func New(capacity int, m *metrics.Metrics) *Queue {
	return &Queue{ch: make(chan Message, capacity), metrics: m}
}

// PutUpdate enqueues an UPDATE for a locally classified digest. Returns
// false if the queue is full; the caller does not retry, it records the
// miss through the accounting interface instead (see internal/engine).
func (q *Queue) PutUpdate(d fingerprint.Digest) bool {
	return q.tryPut(Message{Tag: Update, Digest: d}, "worker")
}

// PutAbsoluteUpdate enqueues an ABSOLUTE_UPDATE applying a peer's
// operational sync. The consumer applies it exactly like UPDATE, as an
// Insert into the active filter; it carries no flag, so a later
// SYNC_AGGREGATE install of that filter replaces it like any other bit.
func (q *Queue) PutAbsoluteUpdate(d fingerprint.Digest) bool {
	return q.tryPut(Message{Tag: AbsoluteUpdate, Digest: d}, "syncmgr")
}

// PutUpdateOper enqueues an UPDATE_OPER applied during a catch-up replay.
func (q *Queue) PutUpdateOper(d fingerprint.Digest) bool {
	return q.tryPut(Message{Tag: UpdateOper, Digest: d}, "syncmgr")
}

// PutSyncAggregate enqueues a bulk filter overwrite from a peer's
// aggregate sync.
func (q *Queue) PutSyncAggregate(filterIndex int, payload []byte) bool {
	return q.tryPut(Message{Tag: SyncAggregate, FilterIndex: filterIndex, FilterBytes: payload}, "syncmgr")
}

// PutRotate enqueues a ROTATE tick, blocking until there is room (or ctx
// is canceled) rather than dropping it: a lost rotation widens the
// window for every in-flight and future request until the next tick.
func (q *Queue) PutRotate(ctx context.Context) error {
	select {
	case q.ch <- Message{Tag: Rotate}:
		q.observeDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) tryPut(m Message, producer string) bool {
	select {
	case q.ch <- m:
		q.observeDepth()
		return true
	default:
		if q.metrics != nil {
			q.metrics.QueueDrops.WithLabelValues(producer).Inc()
		}
		return false
	}
}

func (q *Queue) observeDepth() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.ch)))
	}
}

// Consumer drains the queue and applies each message to r, in arrival
// order, until ctx is canceled and the queue is empty. It is the only
// goroutine allowed to call r.Rotate or r.Install.
type Consumer struct {
	queue   *Queue
	ring    *ring.Ring
	metrics *metrics.Metrics
}

// NewConsumer builds a Consumer bound to q and r.
func NewConsumer(q *Queue, r *ring.Ring, m *metrics.Metrics) *Consumer {
	return &Consumer{queue: q, ring: r, metrics: m}
}

// Run processes messages until ctx is canceled. It is meant to be run in
// its own goroutine for the lifetime of the daemon.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case msg := <-c.queue.ch:
			c.apply(msg)
			c.queue.observeDepth()
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

// drain applies whatever is left in the channel buffer without blocking,
// so a clean shutdown still flushes pending updates (see the daemon
// shutdown sequence in cmd/greyd).
func (c *Consumer) drain() {
	for {
		select {
		case msg := <-c.queue.ch:
			c.apply(msg)
		default:
			return
		}
	}
}

func (c *Consumer) apply(msg Message) {
	switch msg.Tag {
	case Update, UpdateOper:
		c.ring.Insert(msg.Digest)
	case AbsoluteUpdate:
		c.ring.Insert(msg.Digest)
	case Rotate:
		c.ring.Rotate()
		if c.metrics != nil {
			c.metrics.RingRotations.Inc()
		}
	case SyncAggregate:
		if err := c.ring.Install(msg.FilterIndex, msg.FilterBytes); err != nil {
			// Malformed or stale aggregate frame; the ring is a union of
			// filters so a dropped install is recovered by the next
			// periodic aggregate sync.
			return
		}
	}
	if c.metrics != nil {
		ratios := c.ring.FillRatio()
		for i, v := range ratios {
			c.metrics.RingFillRatio.WithLabelValues(fmt.Sprintf("%d", i)).Set(v)
		}
	}
}
