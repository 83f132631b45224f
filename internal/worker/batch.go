package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"golang.org/x/time/rate"
)

// Options tune the batch jobs.
type Options struct {
	CallTimeout time.Duration // per provider call
	PaceRPS     float64       // provider calls per second, 0 = unpaced
	Concurrency int           // rows in flight, 1 = sequential
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return o
}

func (o Options) limiter() *rate.Limiter {
	if o.PaceRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(o.PaceRPS), 1)
}

// forEach calls fn for every row, with at most concurrency calls in flight.
// fn owns its error handling; one row never stops the others.
func forEach(ctx context.Context, rows []model.Subscription, concurrency int, fn func(ctx context.Context, sub *model.Subscription)) {
	if concurrency <= 1 {
		for i := range rows {
			fn(ctx, &rows[i])
		}
		return
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range rows {
		sem <- struct{}{}
		wg.Add(1)
		go func(sub *model.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, sub)
		}(&rows[i])
	}
	wg.Wait()
}

// tally counts row outcomes from concurrent row handlers and mirrors them to metrics.
type tally struct {
	mu  sync.Mutex
	job string
}

// record bumps every field once and counts the row under outcome.
func (t *tally) record(outcome string, fields ...*int) {
	t.mu.Lock()
	for _, f := range fields {
		*f++
	}
	t.mu.Unlock()
	metrics.LifecycleRows.WithLabelValues(t.job, outcome).Inc()
}

func observeDuration(job string, start time.Time) {
	metrics.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
