// Package driver repeatedly triggers the upload queue gateway on a fixed interval.
package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultConcurrency = 1
)

// Outcome is what one gateway call reported.
type Outcome struct {
	NoJob         bool
	JobID         string
	Status        string
	WebhookStatus *int
}

// Trigger runs one claim-and-process cycle.
type Trigger interface {
	Trigger(ctx context.Context) (*Outcome, error)
}

type Driver struct {
	trigger     Trigger
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
}

type Option func(*Driver)

func WithInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.interval = d
		}
	}
}

// WithConcurrency sets how many gateway calls are issued together per tick.
func WithConcurrency(n int) Option {
	return func(dr *Driver) {
		if n > 0 {
			dr.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

func New(trigger Trigger, opts ...Option) *Driver {
	d := &Driver{
		trigger:     trigger,
		interval:    DefaultInterval,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run ticks until ctx is cancelled. Failed calls are logged and the loop
// carries on at the normal interval.
func (d *Driver) Run(ctx context.Context) {
	d.logger.Info("queue driver started", "interval", d.interval, "concurrency", d.concurrency)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("queue driver stopped")
			return
		case <-timer.C:
		}

		d.tick(ctx)
		timer.Reset(d.interval)
	}
}

func (d *Driver) tick(ctx context.Context) {
	if d.concurrency <= 1 {
		d.callOnce(ctx)
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.callOnce(ctx)
		}()
	}
	wg.Wait()
}

func (d *Driver) callOnce(ctx context.Context) {
	outcome, err := d.trigger.Trigger(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Error("queue tick failed", "err", err)
		return
	}
	if outcome.NoJob {
		d.logger.Debug("no queued jobs")
		return
	}
	attrs := []any{"job_id", outcome.JobID, "status", outcome.Status}
	if outcome.WebhookStatus != nil {
		attrs = append(attrs, "webhook_status", *outcome.WebhookStatus)
	}
	d.logger.Info("processed upload job", attrs...)
}
