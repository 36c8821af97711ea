// Package postgres builds the instrumented pgx pool shared by the Postgres
// backed stores.
package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
)

type poolOptions struct {
	maxConns int32
	logMin   time.Duration
}

// Option configures NewPool.
type Option func(*poolOptions)

// WithMaxConns caps the pool size. Zero keeps the pgx default.
func WithMaxConns(n int32) Option {
	return func(o *poolOptions) { o.maxConns = n }
}

// WithSlowQueryLog only logs successful queries that took at least d.
func WithSlowQueryLog(d time.Duration) Option {
	return func(o *poolOptions) { o.logMin = d }
}

// NewPool parses databaseURL, attaches the otel and logging query tracer,
// and pings the server before returning.
func NewPool(ctx context.Context, databaseURL string, opts ...Option) (*pgxpool.Pool, error) {
	var o poolOptions
	for _, fn := range opts {
		fn(&o)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}
	cfg.ConnConfig.Tracer = newQueryTracer(otelpgx.NewTracer(), o.logMin)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// RequestStats attaches per-request DB stats and the HTTP method to the
// request context, and logs a summary once the handler returns if any
// queries ran.
func RequestStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewReqDBStatsContext(WithHTTPMethod(r.Context(), r.Method))
		next.ServeHTTP(w, r.WithContext(ctx))

		stats, _ := ReqDBStatsFromContext(ctx)
		count, total, errs := stats.Snapshot()
		if count == 0 {
			return
		}
		log.FromContext(ctx).Info(ctx, "db request stats",
			"db.query_count", count,
			"db.total_duration", total.Seconds(),
			"db.error_count", errs,
		)
	})
}
