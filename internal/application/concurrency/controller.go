// Package concurrency implements keyed admission control for runs and job
// instances. Each key (a concurrency group) has at most one active holder and
// at most one pending holder.
package concurrency

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

// ErrSuperseded is returned by Ticket.Wait when a newer submission to the same
// group replaced this one before it was admitted.
var ErrSuperseded = errors.New("superseded by a newer submission")

// Decision labels recorded for every admission outcome.
const (
	DecisionAdmitted   = "admitted"
	DecisionQueued     = "queued"
	DecisionPreempted  = "preempted"
	DecisionSuperseded = "superseded"
)

// PreemptFunc is invoked, outside the controller lock, when a holder loses its
// slot to a cancel-in-progress submission.
type PreemptFunc func(reason domain.CancelReason)

// Controller owns the group map.
type Controller struct {
	mu      sync.Mutex
	groups  map[string]*group
	logger  *zap.Logger
	metrics ports.MetricsCollector
}

type group struct {
	active  *Ticket
	pending *Ticket
}

// NewController creates a controller. metrics may be nil.
func NewController(logger *zap.Logger, metrics ports.MetricsCollector) *Controller {
	return &Controller{
		groups:  make(map[string]*group),
		logger:  logger,
		metrics: metrics,
	}
}

// Ticket is one holder's claim on a group.
type Ticket struct {
	c       *Controller
	key     string
	holder  string
	preempt PreemptFunc

	done       chan struct{}
	superseded bool
	preempted  bool
	released   bool
}

// Key returns the group key.
func (t *Ticket) Key() string { return t.key }

// Holder returns the holder ID passed to Submit.
func (t *Ticket) Holder() string { return t.holder }

// Submit claims the group key for holder.
//
// An idle group admits immediately. With cancelInProgress the active holder
// is preempted, any pending holder is superseded and the new holder becomes
// active at once. Otherwise the new holder becomes the single pending holder,
// superseding any older pending one. An empty key is never contended.
func (c *Controller) Submit(key, holder string, cancelInProgress bool, preempt PreemptFunc) *Ticket {
	t := &Ticket{c: c, key: key, holder: holder, preempt: preempt, done: make(chan struct{})}
	if key == "" {
		close(t.done)
		return t
	}

	var victims []*Ticket

	c.mu.Lock()
	g, ok := c.groups[key]
	if !ok {
		g = &group{}
		c.groups[key] = g
	}

	switch {
	case g.active == nil:
		g.active = t
		close(t.done)
		c.record(DecisionAdmitted, t)

	case cancelInProgress:
		if g.pending != nil {
			c.supersede(g.pending)
			g.pending = nil
		}
		prev := g.active
		prev.preempted = true
		victims = append(victims, prev)
		c.record(DecisionPreempted, prev)

		g.active = t
		close(t.done)
		c.record(DecisionAdmitted, t)

	default:
		if g.pending != nil {
			c.supersede(g.pending)
		}
		g.pending = t
		c.record(DecisionQueued, t)
	}
	c.mu.Unlock()

	for _, v := range victims {
		if v.preempt != nil {
			v.preempt(domain.ReasonConcurrencyPreempted)
		}
	}
	return t
}

// supersede must be called with c.mu held.
func (c *Controller) supersede(t *Ticket) {
	t.superseded = true
	close(t.done)
	c.record(DecisionSuperseded, t)
}

func (c *Controller) record(decision string, t *Ticket) {
	c.logger.Debug("concurrency decision",
		zap.String("group", t.key),
		zap.String("holder", t.holder),
		zap.String("decision", decision))
	if c.metrics != nil {
		c.metrics.RecordConcurrencyDecision(decision)
	}
}

// Wait blocks until the ticket is admitted or superseded, or ctx is done. On
// context cancellation the pending claim is withdrawn and the cause returned.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		t.Release()
		return context.Cause(ctx)
	}

	t.c.mu.Lock()
	superseded := t.superseded
	t.c.mu.Unlock()
	if superseded {
		return ErrSuperseded
	}
	return nil
}

// Admitted reports, without blocking, whether the ticket holds the slot.
func (t *Ticket) Admitted() bool {
	select {
	case <-t.done:
	default:
		return false
	}
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return !t.superseded
}

// Preempted reports whether a cancel-in-progress submission took the slot.
func (t *Ticket) Preempted() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.preempted
}

// Release gives up the claim. If t was the active holder the pending holder,
// if any, is admitted. Release is idempotent.
func (t *Ticket) Release() {
	if t.key == "" {
		return
	}
	c := t.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.released {
		return
	}
	t.released = true

	g, ok := c.groups[t.key]
	if !ok {
		return
	}
	switch t {
	case g.active:
		g.active = g.pending
		g.pending = nil
		if g.active != nil {
			close(g.active.done)
			c.record(DecisionAdmitted, g.active)
		}
	case g.pending:
		g.pending = nil
	}
	if g.active == nil && g.pending == nil {
		delete(c.groups, t.key)
	}
}

// Holders returns the active and pending holder IDs of key, empty when none.
func (c *Controller) Holders(key string) (active, pending string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[key]
	if !ok {
		return "", ""
	}
	if g.active != nil {
		active = g.active.holder
	}
	if g.pending != nil {
		pending = g.pending.holder
	}
	return active, pending
}
