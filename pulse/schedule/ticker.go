package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/logger"
)

// Daily is a wall-clock time of day in a fixed location.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// ParseDaily parses an HH:MM time of day. An empty timezone means the local zone.
func ParseDaily(at, timezone string) (Daily, error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return Daily{}, errors.Wrapf(errors.ErrInvalidRequest, "daily time %q is not HH:MM", at)
	}

	loc := time.Local
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return Daily{}, errors.Wrapf(err, "load timezone %q", timezone)
		}
	}

	return Daily{Hour: parsed.Hour(), Minute: parsed.Minute(), Location: loc}, nil
}

// Next returns the first occurrence strictly after the given instant.
func (d Daily) Next(after time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	local := after.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return candidate
}

func (d Daily) String() string {
	name := "Local"
	if d.Location != nil {
		name = d.Location.String()
	}
	return fmt.Sprintf("%02d:%02d %s", d.Hour, d.Minute, name)
}

// Ticker fires once a day at its configured time of day.
// It polls the clock every interval so a suspended host still fires on wake.
type Ticker struct {
	daily    Daily
	interval time.Duration
	now      func() time.Time
	fire     chan time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger // Logger with Pulse symbol pre-attached

	mu              sync.Mutex
	next            time.Time
	lastTickAt      time.Time
	ticksSinceStart int64
}

// TickerConfig contains configuration for the daily ticker
type TickerConfig struct {
	Daily    Daily
	Interval time.Duration    // How often to compare the clock against the next run
	Now      func() time.Time // Clock; nil means time.Now
}

// DefaultTickerConfig returns 06:00 local time, checked every 30 seconds
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Daily:    Daily{Hour: 6, Minute: 0, Location: time.Local},
		Interval: 30 * time.Second,
	}
}

// NewTicker creates a new daily ticker
func NewTicker(cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), cfg, log)
}

// NewTickerWithContext creates a ticker with a parent context
func NewTickerWithContext(ctx context.Context, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	log = logger.OrNop(log)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultTickerConfig().Interval
	}

	return &Ticker{
		daily:    cfg.Daily,
		interval: interval,
		now:      now,
		fire:     make(chan time.Time, 1),
		ctx:      tickerCtx,
		cancel:   cancel,
		logger:   log,
		pulseLog: logger.AddPulseSymbol(log),
	}
}

// C delivers the scheduled instant each time the ticker fires.
// A fire that is not received before the next one is dropped.
func (t *Ticker) C() <-chan time.Time {
	return t.fire
}

// NextRun returns the instant of the next fire
func (t *Ticker) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.mu.Lock()
	t.next = t.daily.Next(t.now())
	next := t.next
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Daily ticker started",
		"at", t.daily.String(),
		"next_run", next.Format(time.RFC3339),
		"interval", t.interval)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.pulseLog.Infow("Daily ticker stopped")
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			t.mu.Unlock()

			t.check(t.now())
		}
	}
}

// check fires when now has reached the next scheduled instant, then re-arms
func (t *Ticker) check(now time.Time) {
	t.mu.Lock()
	due := t.next
	if now.Before(due) {
		t.mu.Unlock()
		return
	}
	t.next = t.daily.Next(now)
	next := t.next
	ticks := t.ticksSinceStart
	t.mu.Unlock()

	select {
	case t.fire <- due:
		t.pulseLog.Infow("Daily run due",
			"scheduled", due.Format(time.RFC3339),
			"next_run", next.Format(time.RFC3339))
	default:
		t.pulseLog.Warnw("Daily run skipped, previous run still in progress",
			"scheduled", due.Format(time.RFC3339),
			"tick", ticks)
	}
}
