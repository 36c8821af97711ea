// Package rediscache wraps a triage.ReferenceStore with a read-through
// Redis cache. Reference data changes rarely, so results are cached for a
// fixed TTL and a cache outage only costs latency.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

const defaultPrefix = "vettriage"

// Options configure the cache.
type Options struct {
	// TTL is how long a result is kept. Zero means entries never expire.
	TTL time.Duration

	// Prefix namespaces keys. Defaults to "vettriage".
	Prefix string

	// Registerer receives the hit/miss counters. Nil disables them.
	Registerer prometheus.Registerer
}

// Store is a caching triage.ReferenceStore.
type Store struct {
	inner   triage.ReferenceStore
	client  redis.Cmdable
	logger  log.Logger
	ttl     time.Duration
	prefix  string
	lookups *prometheus.CounterVec
}

// New wraps inner with a cache backed by client.
func New(inner triage.ReferenceStore, client redis.Cmdable, logger log.Logger, opts Options) *Store {
	if inner == nil || client == nil {
		panic(xerrors.New("rediscache: inner store and client are required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Store{
		inner:  inner,
		client: client,
		logger: logger,
		ttl:    opts.TTL,
		prefix: opts.Prefix,
	}
	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if opts.Registerer != nil {
		s.lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vettriage_reference_cache_lookups_total",
			Help: "Reference cache lookups by collection and result (hit, miss, error).",
		}, []string{"collection", "result"})
		opts.Registerer.MustRegister(s.lookups)
	}
	return s
}

// SearchToxins serves from cache when possible and fills it on a miss.
func (s *Store) SearchToxins(ctx context.Context, q triage.ToxinQuery) ([]triage.ToxinRecord, error) {
	key := s.key(triage.CollectionToxins, q.Species, q.NameContains, q.Limit)
	return readThrough(ctx, s, triage.CollectionToxins, key, func(ctx context.Context) ([]triage.ToxinRecord, error) {
		return s.inner.SearchToxins(ctx, q)
	})
}

// SearchCases serves from cache when possible and fills it on a miss.
func (s *Store) SearchCases(ctx context.Context, q triage.CaseQuery) ([]triage.CaseRecord, error) {
	key := s.key(triage.CollectionCases, q.Species, q.Text, q.Limit)
	return readThrough(ctx, s, triage.CollectionCases, key, func(ctx context.Context) ([]triage.CaseRecord, error) {
		return s.inner.SearchCases(ctx, q)
	})
}

// key builds "<prefix>:<collection>:<species or *>:<lowercased text>:<limit>".
// Matching is case-insensitive, so the text is folded to share entries.
func (s *Store) key(collection string, species triage.Species, text string, limit int) string {
	sp := string(species)
	if sp == "" {
		sp = "*"
	}
	if limit < 0 {
		limit = 0
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d", s.prefix, collection, sp, strings.ToLower(text), limit)
}

// readThrough is shared by both collections. Cache failures are logged and
// fall through to the inner store; inner store errors are never cached.
func readThrough[T any](ctx context.Context, s *Store, collection, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rows []T
		uerr := json.Unmarshal(raw, &rows)
		if uerr == nil {
			s.count(collection, "hit")
			return rows, nil
		}
		s.count(collection, "error")
		s.logger.Warn(ctx, "discarding corrupt cache entry", "key", key, "error", uerr)
	case errors.Is(err, redis.Nil):
		s.count(collection, "miss")
	default:
		s.count(collection, "error")
		s.logger.Warn(ctx, "reference cache get failed", "key", key, "error", err)
	}

	rows, err := load(ctx)
	if err != nil {
		return nil, err
	}

	// an empty result is cached as [] so repeated misses stay cheap
	if rows == nil {
		rows = []T{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		s.logger.Warn(ctx, "reference cache encode failed", "key", key, "error", err)
		return rows, nil
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn(ctx, "reference cache set failed", "key", key, "error", err)
	}
	return rows, nil
}

func (s *Store) count(collection, result string) {
	if s.lookups != nil {
		s.lookups.WithLabelValues(collection, result).Inc()
	}
}
