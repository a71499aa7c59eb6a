package postgres

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GriffinCanCode/poolguard/internal/pool"
)

type (
	acquireStartKey struct{}
	queryStartKey   struct{}
)

type queryStart struct {
	at  time.Time
	sql string
}

// Tracer feeds pgxpool lifecycle events into a pool.Monitor and query
// timings into a pool.QueryMonitor. Installed as ConnConfig.Tracer it
// observes acquires, releases and queries. Events arriving before Attach
// are dropped.
type Tracer struct {
	monitor atomic.Pointer[pool.Monitor]
	queries atomic.Pointer[pool.QueryMonitor]
	now     func() time.Time
}

// NewTracer creates a detached tracer.
func NewTracer() *Tracer {
	return &Tracer{now: time.Now}
}

// Attach directs subsequent events to monitor.
func (t *Tracer) Attach(monitor *pool.Monitor) {
	t.monitor.Store(monitor)
}

// AttachQueries directs subsequent query timings to queries.
func (t *Tracer) AttachQueries(queries *pool.QueryMonitor) {
	t.queries.Store(queries)
}

// TraceAcquireStart implements pgxpool.AcquireTracer.
func (t *Tracer) TraceAcquireStart(ctx context.Context, _ *pgxpool.Pool, _ pgxpool.TraceAcquireStartData) context.Context {
	return context.WithValue(ctx, acquireStartKey{}, t.now())
}

// TraceAcquireEnd implements pgxpool.AcquireTracer.
func (t *Tracer) TraceAcquireEnd(ctx context.Context, _ *pgxpool.Pool, data pgxpool.TraceAcquireEndData) {
	if data.Err != nil {
		if errors.Is(data.Err, context.DeadlineExceeded) {
			t.monitor.Load().RecordTimeout()
			return
		}
		if !errors.Is(data.Err, context.Canceled) {
			t.monitor.Load().RecordError(data.Err)
		}
		return
	}

	var d time.Duration
	if start, ok := ctx.Value(acquireStartKey{}).(time.Time); ok {
		d = t.now().Sub(start)
	}
	t.monitor.Load().RecordCheckout(d)
}

// TraceRelease implements pgxpool.ReleaseTracer.
func (t *Tracer) TraceRelease(_ *pgxpool.Pool, _ pgxpool.TraceReleaseData) {
	t.monitor.Load().RecordCheckin()
}

// TraceQueryStart implements pgx.QueryTracer.
func (t *Tracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.now(), sql: data.SQL})
}

// TraceQueryEnd implements pgx.QueryTracer. Every query is timed; only
// failures of the connection or the server count as pool errors.
func (t *Tracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil && infrastructural(data.Err) {
		t.monitor.Load().RecordError(data.Err)
	}

	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	t.queries.Load().Record(strings.TrimSpace(start.sql), start.at, t.now().Sub(start.at), data.Err)
}

var (
	_ pgx.QueryTracer        = (*Tracer)(nil)
	_ pgxpool.AcquireTracer = (*Tracer)(nil)
	_ pgxpool.ReleaseTracer = (*Tracer)(nil)
)
