package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// Deliverer sends one alert and reports whether it arrived.
type Deliverer func(ctx context.Context, snap pool.Snapshot) error

// Fanout delivers each snapshot to every non-nil deliverer in order. The
// result joins every delivery error.
func Fanout(deliverers ...Deliverer) Deliverer {
	return func(ctx context.Context, snap pool.Snapshot) error {
		var errs []error
		for _, d := range deliverers {
			if d == nil {
				continue
			}
			if err := d(ctx, snap); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Throttle limits alerts per target to one every interval with the given
// burst. Only delivered alerts spend the budget: a failed delivery leaves
// it untouched so the next unhealthy snapshot is tried at once. Alerts
// dropped meanwhile are counted and reported with the next delivery.
type Throttle struct {
	interval time.Duration
	burst    int
	next     Deliverer
	logger   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	dropped  map[string]int
	inflight map[string]bool
}

// NewThrottle wraps next. An interval <= 0 disables throttling.
func NewThrottle(next Deliverer, interval time.Duration, burst int, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{
		interval: interval,
		burst:    max(burst, 1),
		next:     next,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		dropped:  make(map[string]int),
		inflight: make(map[string]bool),
	}
}

// Sink returns the throttled pool.AlertSink. Delivery errors are logged.
func (t *Throttle) Sink() pool.AlertSink {
	return func(ctx context.Context, snap pool.Snapshot) {
		suppressed, ok := t.begin(snap.Target)
		if !ok {
			return
		}

		err := t.next(ctx, snap)
		t.finish(snap.Target, suppressed, err)

		if err != nil {
			t.logger.Error("Failed to deliver alert",
				zap.String("target", snap.Target),
				zap.Error(err),
			)
			return
		}
		if suppressed > 0 {
			t.logger.Warn("Alerts suppressed by throttle",
				zap.String("target", snap.Target),
				zap.Int("suppressed", suppressed),
			)
		}
	}
}

// Suppressed returns the number of alerts dropped or failed for target
// since the last one delivered.
func (t *Throttle) Suppressed(target string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped[target]
}

// begin admits one delivery for target if the budget has a token and no
// other delivery for target is in flight. The token is not spent yet.
func (t *Throttle) begin(target string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inflight[target] {
		t.dropped[target]++
		return 0, false
	}
	if t.interval > 0 && t.limiter(target).Tokens() < 1 {
		t.dropped[target]++
		return 0, false
	}
	t.inflight[target] = true
	return t.dropped[target], true
}

func (t *Throttle) finish(target string, reported int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inflight[target] = false
	if err != nil {
		t.dropped[target]++
		return
	}
	if t.interval > 0 {
		t.limiter(target).Allow()
	}
	t.dropped[target] -= reported
}

func (t *Throttle) limiter(target string) *rate.Limiter {
	limiter, ok := t.limiters[target]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.interval), t.burst)
		t.limiters[target] = limiter
	}
	return limiter
}
