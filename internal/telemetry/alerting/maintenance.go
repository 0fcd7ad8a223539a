package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Housekeeping runs at the end of every maintenance tick.
type Housekeeping func(ctx context.Context, now time.Time) error

// AddHousekeeping registers a hook executed on every maintenance tick.
func (e *Engine) AddHousekeeping(h Housekeeping) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, h)
}

// Start launches the maintenance loop. Calling it while running is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(loopCtx, e.done)

	e.logger.Info("Alert maintenance started", "interval", e.cfg.MaintenanceInterval)
}

// Stop cancels the maintenance loop and waits up to timeout for it to exit.
func (e *Engine) Stop(timeout time.Duration) bool {
	e.loopMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.loopMu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()

	select {
	case <-done:
		e.logger.Info("Alert maintenance stopped")
		return true
	case <-time.After(timeout):
		e.logger.Warn("Alert maintenance did not stop in time", "timeout", timeout)
		return false
	}
}

// Running reports whether the maintenance loop is active.
func (e *Engine) Running() bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	return e.cancel != nil
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	wait := e.cfg.MaintenanceInterval
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := e.Tick(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("Alert maintenance tick failed", err, "backoff", e.cfg.ErrorBackoff)
			wait = e.cfg.ErrorBackoff
			continue
		}
		wait = e.cfg.MaintenanceInterval
	}
}

// Tick runs one maintenance pass. Panics are converted to errors.
func (e *Engine) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("maintenance panic: %v", r)
		}
	}()

	var errs []error
	if _, evalErr := e.Evaluate(ctx); evalErr != nil {
		errs = append(errs, fmt.Errorf("evaluate rules: %w", evalErr))
	}
	if _, rateErr := e.EvaluateErrorRates(ctx); rateErr != nil {
		errs = append(errs, fmt.Errorf("evaluate error rates: %w", rateErr))
	}
	e.AutoResolve(ctx)

	now := e.cfg.Now()
	if _, cleanErr := e.Cleanup(ctx, now); cleanErr != nil {
		errs = append(errs, fmt.Errorf("cleanup: %w", cleanErr))
	}

	e.hooksMu.Lock()
	hooks := append([]Housekeeping(nil), e.hooks...)
	e.hooksMu.Unlock()
	for _, h := range hooks {
		if hookErr := h(ctx, now); hookErr != nil {
			errs = append(errs, fmt.Errorf("housekeeping: %w", hookErr))
		}
	}
	return errors.Join(errs...)
}
