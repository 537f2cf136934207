package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rodneyosodo/fedstream/pkg/aggregator"
	"github.com/rodneyosodo/fedstream/pkg/params"
)

// collector gathers client updates for one round attempt. Submissions
// may be concurrent; Close serializes entry into aggregation so the
// round observes a fixed snapshot. Updates arriving after Close are
// rejected and belong to no round.
type collector struct {
	mu sync.Mutex

	target    int
	updates   []params.ClientUpdate
	failures  []ClientFailure
	seen      map[string]struct{}
	reference params.ParameterSet
	closed    bool
	filled    bool
	full      chan struct{}
}

func newCollector(target int) *collector {
	return &collector{
		target: target,
		seen:   make(map[string]struct{}),
		full:   make(chan struct{}),
	}
}

// submit validates and records one client update. A malformed update is
// recorded on the failure list and dropped without aborting the round.
func (c *collector) submit(update params.ClientUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrRoundClosed
	}

	if update.ClientID == "" {
		return fmt.Errorf("%w: missing client ID", aggregator.ErrInvalidUpdate)
	}
	if _, ok := c.seen[update.ClientID]; ok {
		return fmt.Errorf("%w: client %q already submitted this round", aggregator.ErrInvalidUpdate, update.ClientID)
	}

	if err := c.validate(update); err != nil {
		c.seen[update.ClientID] = struct{}{}
		c.failures = append(c.failures, ClientFailure{ClientID: update.ClientID, Reason: err.Error()})

		return err
	}

	if c.reference.Empty() {
		c.reference = update.Params
	}
	update.ReceivedAt = time.Now().UTC()
	c.seen[update.ClientID] = struct{}{}
	c.updates = append(c.updates, update)

	// Stragglers may keep arriving between the target being met and the
	// round taking its snapshot; the full channel closes exactly once.
	if !c.filled && len(c.updates) >= c.target {
		c.filled = true
		close(c.full)
	}

	return nil
}

func (c *collector) validate(update params.ClientUpdate) error {
	if update.Params.Empty() {
		return fmt.Errorf("%w: empty parameter set", aggregator.ErrInvalidUpdate)
	}
	if update.NumSamples < 0 {
		return fmt.Errorf("%w: negative sample count %d", aggregator.ErrInvalidUpdate, update.NumSamples)
	}
	if !c.reference.Empty() && !update.Params.SameSignature(c.reference) {
		return fmt.Errorf("%w: client %q", aggregator.ErrShapeMismatch, update.ClientID)
	}

	return nil
}

// recordFailure notes a client whose payload could not even be decoded.
func (c *collector) recordFailure(clientID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.failures = append(c.failures, ClientFailure{ClientID: clientID, Reason: reason})
}

// wait blocks until the target count is met, the deadline elapses, or
// the context is cancelled.
func (c *collector) wait(ctx context.Context, deadline time.Duration) error {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-c.full:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshot closes the window and returns the fixed set of updates and
// failures observed by this round attempt.
func (c *collector) snapshot() ([]params.ClientUpdate, []ClientFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	updates := make([]params.ClientUpdate, len(c.updates))
	copy(updates, c.updates)
	failures := make([]ClientFailure, len(c.failures))
	copy(failures, c.failures)

	return updates, failures
}

func (c *collector) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.updates)
}
