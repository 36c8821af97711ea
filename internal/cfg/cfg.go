package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"time"
)

// Config holds the application-level settings. Library packages (http
// server, logging, tracing, ...) register their own configs alongside it.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	DatabaseURL       string
	DBMaxConns        int
	DBSlowQueryMillis int
	SeedReference     bool
	ReferenceFile     string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTLSeconds int

	QueryTimeoutMillis   int
	CrossSpeciesFallback bool

	AdminToken      string
	SlackWebhookURL string
}

// minAdminTokenLen keeps trivially guessable admin tokens out of config.
const minAdminTokenLen = 16

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for reference data (empty = in-memory store)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 0, "maximum PostgreSQL pool connections (0 = pgx default)")
	fs.IntVar(&c.DBSlowQueryMillis, "db-slow-query-ms", 0, "only log successful queries slower than this many milliseconds (0 = log all)")
	fs.BoolVar(&c.SeedReference, "seed-reference", false, "upsert the reference dataset (bundled or -reference-file) into PostgreSQL at startup")
	fs.StringVar(&c.ReferenceFile, "reference-file", "", "YAML reference dataset (empty = bundled dataset)")

	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for the reference query cache (empty = no cache)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis database number (0..15)")
	fs.IntVar(&c.CacheTTLSeconds, "cache-ttl-seconds", 300, "reference cache entry lifetime in seconds (0 = no expiry, max 86400)")

	fs.IntVar(&c.QueryTimeoutMillis, "query-timeout-ms", 2000, "timeout for each reference store query in milliseconds (0 = none, max 60000)")
	fs.BoolVar(&c.CrossSpeciesFallback, "cross-species-fallback", true, "when no toxin record exists for the species, use a record for another species")

	fs.StringVar(&c.AdminToken, "admin-token", "", "bearer token for the read-only reference admin endpoints (empty = disabled)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for emergency escalations (empty = disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Database pool
	if c.DBMaxConns < 0 || c.DBMaxConns > 1000 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 0..1000)", c.DBMaxConns))
	}
	if c.DBSlowQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must be >= 0)", c.DBSlowQueryMillis))
	}
	if c.SeedReference && c.DatabaseURL == "" {
		errs = append(errs, errors.New("SEED_REFERENCE requires DATABASE_URL"))
	}
	if c.ReferenceFile != "" && c.DatabaseURL != "" && !c.SeedReference {
		errs = append(errs, errors.New("REFERENCE_FILE is ignored with DATABASE_URL unless SEED_REFERENCE is set"))
	}

	// Cache
	if c.RedisDB < 0 || c.RedisDB > 15 {
		errs = append(errs, fmt.Errorf("invalid REDIS_DB %d (must be 0..15)", c.RedisDB))
	}
	if c.CacheTTLSeconds < 0 || c.CacheTTLSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid CACHE_TTL_SECONDS %d (must be 0..86400)", c.CacheTTLSeconds))
	}

	// Resolver
	if c.QueryTimeoutMillis < 0 || c.QueryTimeoutMillis > 60000 {
		errs = append(errs, fmt.Errorf("invalid QUERY_TIMEOUT_MS %d (must be 0..60000)", c.QueryTimeoutMillis))
	}

	// Admin endpoints are optional, but a configured token must not be trivial
	if c.AdminToken != "" && len(c.AdminToken) < minAdminTokenLen {
		errs = append(errs, fmt.Errorf("ADMIN_TOKEN must be at least %d characters", minAdminTokenLen))
	}

	if c.SlackWebhookURL != "" {
		u, err := url.Parse(c.SlackWebhookURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, errors.New("SLACK_WEBHOOK_URL must be an https URL"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// QueryTimeout returns the per-query timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMillis) * time.Millisecond
}

// CacheTTL returns the cache entry lifetime as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DBSlowQuery returns the slow query log threshold as a duration.
func (c *Config) DBSlowQuery() time.Duration {
	return time.Duration(c.DBSlowQueryMillis) * time.Millisecond
}
