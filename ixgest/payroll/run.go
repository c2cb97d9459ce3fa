package payroll

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/pulse/schedule"
)

// Run keeps extracting until ctx is cancelled or a fatal error occurs.
// Check mode runs passes back to back. Profile mode runs one pass, then one
// more each day at the scheduled time. The checkpoint applies to the first
// pass only. Cancellation returns nil.
func (p *Processor) Run(ctx context.Context, cp Checkpoint) error {
	var err error
	if p.opts.Mode == ModeCheck {
		err = p.runContinuous(ctx, cp)
	} else {
		err = p.runDaily(ctx, cp)
	}
	if ctx.Err() != nil && (err == nil || errors.Is(err, ctx.Err())) {
		return nil
	}
	return err
}

func (p *Processor) runContinuous(ctx context.Context, cp Checkpoint) error {
	pause := p.passBackOff()
	for {
		_, err := p.RunOnce(ctx, cp)
		cp = Checkpoint{}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.IsFatal(err) {
			return err
		}
		if err == nil {
			pause.Reset()
			continue
		}

		wait := pause.NextBackOff()
		p.ixLog.Warnw("Pass failed, pausing before the next one", "error", err, "wait", wait.String())
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p *Processor) runDaily(ctx context.Context, cp Checkpoint) error {
	if _, err := p.RunOnce(ctx, cp); err != nil {
		if ctx.Err() != nil || errors.IsFatal(err) {
			return err
		}
		p.ixLog.Warnw("Pass failed, waiting for the next scheduled run", "error", err)
	}

	ticker := schedule.NewTickerWithContext(ctx, p.opts.Schedule, p.logger)
	ticker.Start()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if _, err := p.RunOnce(ctx, Checkpoint{}); err != nil {
				if ctx.Err() != nil || errors.IsFatal(err) {
					return err
				}
				p.ixLog.Warnw("Pass failed, waiting for the next scheduled run", "error", err)
			}
		}
	}
}

// passBackOff paces consecutive failed passes in check mode
func (p *Processor) passBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.opts.RetryInitial > 0 {
		b.InitialInterval = p.opts.RetryInitial
	}
	if p.opts.RetryMax > 0 {
		b.MaxInterval = p.opts.RetryMax
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
