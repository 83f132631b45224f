package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/jmehdipour/realestate-billing/internal/model"
)

var (
	ErrNoHealthy = errors.New("no healthy notification endpoints")
	ErrNoAcquire = errors.New("endpoint not acquired")
)

// Dispatcher round-robins notifications over healthy endpoints and retries up
// to maxAttempts times, picking a fresh endpoint for each attempt.
type Dispatcher struct {
	endpoints   []Endpoint
	rr          atomic.Uint64
	maxAttempts int
}

func NewDispatcher(endpoints []Endpoint, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Dispatcher{endpoints: endpoints, maxAttempts: maxAttempts}
}

func (d *Dispatcher) selectEndpoint() (Endpoint, error) {
	healthy := make([]Endpoint, 0, len(d.endpoints))
	for _, e := range d.endpoints {
		if e.Ready() {
			healthy = append(healthy, e)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.rr.Add(1)
	return healthy[int((x-1)%uint64(len(healthy)))], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, n model.Notification) error {
	e, err := d.selectEndpoint()
	if err != nil {
		return err
	}
	if !e.Acquire() {
		return fmt.Errorf("%s: %w", e.Name(), ErrNoAcquire)
	}
	err = e.Send(ctx, n)

	breakerOpen := 0.0
	if e.State() != closed.String() {
		breakerOpen = 1
	}
	metrics.EndpointBreakerOpen.WithLabelValues(e.Name()).Set(breakerOpen)

	if err != nil {
		return fmt.Errorf("%s: %w", e.Name(), err)
	}
	return nil
}

// Deliver sends n, returning the last error when every attempt failed.
func (d *Dispatcher) Deliver(ctx context.Context, n model.Notification) error {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.tryOnce(ctx, n)
		if err == nil {
			return nil
		}
		last = err
	}

	if last == nil {
		last = fmt.Errorf("deliver %s failed", n.ID)
	}
	return last
}
