package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// modulePrefix marks frames that belong to this application.
const modulePrefix = "github.com/linnemanlabs/vettriage/"

var queryObserver atomic.Pointer[queryObserverHolder]

// context keys for query metadata.
type ctxKey string

const (
	ctxKeyQuery      ctxKey = "pgx.query"
	ctxKeyHTTPMethod ctxKey = "http.method"
)

type dbStatsKey struct{}

// queryState is stashed on the context between TraceQueryStart and TraceQueryEnd.
type queryState struct {
	sql     string
	args    []any
	start   time.Time
	caller  string
	handler string
}

// QueryEvent describes one finished query.
type QueryEvent struct {
	Method    string
	Route     string
	Operation string
	Outcome   string
	Duration  time.Duration
}

// QueryObserver receives an event for every query (wired by main for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, ev QueryEvent)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, ev QueryEvent)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, ev QueryEvent) {
	f(ctx, ev)
}

type queryObserverHolder struct{ QueryObserver }

// SetQueryObserver sets the global query observer. nil clears it.
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&queryObserverHolder{QueryObserver: o})
}

func getQueryObserver() QueryObserver {
	h := queryObserver.Load()
	if h == nil {
		return nil
	}
	return h.QueryObserver
}

// ReqDBStats accumulates per-request database query statistics.
type ReqDBStats struct {
	mu            sync.Mutex
	QueryCount    int
	TotalDuration time.Duration
	ErrorCount    int
}

// AddQuery records a single query execution.
func (s *ReqDBStats) AddQuery(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCount++
	s.TotalDuration += dur
	if err != nil {
		s.ErrorCount++
	}
}

// Snapshot returns a consistent copy of the counters.
func (s *ReqDBStats) Snapshot() (count int, total time.Duration, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QueryCount, s.TotalDuration, s.ErrorCount
}

// NewReqDBStatsContext returns a new context with an empty ReqDBStats attached.
func NewReqDBStatsContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbStatsKey{}, &ReqDBStats{})
}

// ReqDBStatsFromContext extracts the ReqDBStats from the context, if present.
func ReqDBStatsFromContext(ctx context.Context) (*ReqDBStats, bool) {
	s, ok := ctx.Value(dbStatsKey{}).(*ReqDBStats)
	return s, ok
}

// WithHTTPMethod stores the HTTP method in the context for query metrics labelling.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyHTTPMethod, method)
}

func httpMethodFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyHTTPMethod).(string); ok {
		return v
	}
	return ""
}

func routePatternFromContext(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// queryTracer wraps another pgx.QueryTracer (otelpgx) and adds a structured
// log line, per-request stats and the observer callback for every query.
type queryTracer struct {
	inner pgx.QueryTracer

	// queries faster than this are not logged unless they fail. 0 logs all.
	logMin time.Duration
}

func newQueryTracer(inner pgx.QueryTracer, logMin time.Duration) pgx.QueryTracer {
	return queryTracer{inner: inner, logMin: logMin}
}

func (t queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	st := &queryState{
		sql:   data.SQL,
		args:  data.Args,
		start: time.Now(),
	}
	st.caller, st.handler = findDBCallerAndHandler()

	// inner tracer creates the span first so attributes land on it
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if st.caller != "" {
			span.SetAttributes(attribute.String("db.caller", st.caller))
		}
		if st.handler != "" {
			span.SetAttributes(attribute.String("db.handler", st.handler))
		}
	}

	return context.WithValue(ctx, ctxKeyQuery, st)
}

func (t queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	st, _ := ctx.Value(ctxKeyQuery).(*queryState)
	if st == nil {
		st = &queryState{}
	}

	var dur time.Duration
	if !st.start.IsZero() {
		dur = time.Since(st.start)
	}

	if s, ok := ReqDBStatsFromContext(ctx); ok {
		s.AddQuery(dur, data.Err)
	}

	op := operationName(data.CommandTag.String())

	if obs := getQueryObserver(); obs != nil && dur > 0 {
		ev := QueryEvent{
			Method:    orDefault(httpMethodFromContext(ctx), "UNKNOWN"),
			Route:     orDefault(routePatternFromContext(ctx), "unknown"),
			Operation: orDefault(op, "unknown"),
			Outcome:   "ok",
			Duration:  dur,
		}
		if data.Err != nil {
			ev.Outcome = "error"
		}
		obs.ObserveQuery(ctx, ev)
	}

	if t.logMin > 0 && dur < t.logMin && data.Err == nil {
		return
	}

	fields := []any{
		"db.statement", st.sql,
		"db.args", st.args,
		"db.duration", dur.Seconds(),
	}
	if op != "" {
		fields = append(fields,
			"db.operation.name", op,
			"pg.command_tag", strings.TrimSpace(data.CommandTag.String()),
		)
		if rows := data.CommandTag.RowsAffected(); rows >= 0 {
			fields = append(fields, "db.rows", rows)
		}
	}
	if st.caller != "" {
		fields = append(fields, "db.caller", st.caller)
	}
	if st.handler != "" {
		fields = append(fields, "db.handler", st.handler)
	}

	L := log.FromContext(ctx)
	if data.Err != nil {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields,
				"db.error_code", pgErr.Code,
				"db.error_constraint", pgErr.ConstraintName,
			)
		}
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

// operationName returns the leading verb of a command tag ("SELECT 3" -> "SELECT").
func operationName(tag string) string {
	parts := strings.Fields(tag)
	if len(parts) == 0 {
		return ""
	}
	return strings.ToUpper(parts[0])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// findDBCallerAndHandler walks the stack to find:
//   - caller: the store function actually issuing the query
//   - handler: the next application frame above it outside this package
func findDBCallerAndHandler() (caller, handler string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function

		switch {
		case fn == "":
		case strings.HasPrefix(fn, "runtime."),
			strings.Contains(fn, "github.com/jackc/pgx/v5"),
			strings.Contains(fn, "github.com/exaring/otelpgx"),
			strings.Contains(fn, "queryTracer.TraceQuery"):
		case caller == "":
			caller = shortenFuncName(fn)
		case strings.HasPrefix(fn, modulePrefix+"internal/postgres."):
		case strings.HasPrefix(fn, modulePrefix):
			return caller, shortenFuncName(fn)
		}

		if !more {
			return caller, handler
		}
	}
}

func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
