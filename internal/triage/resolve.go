package triage

import (
	"context"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// Tier identifies one step of the resolver's fallback sequence.
type Tier string

const (
	// TierProbe is toxin name contains problem, any species. It only decides the flow.
	TierProbe Tier = "probe"

	// TierToxinSpecies is toxin name contains problem, same species.
	TierToxinSpecies Tier = "toxin_species"

	// TierToxinAny is toxin name contains problem, any species.
	TierToxinAny Tier = "toxin_any"

	// TierCase is symptoms or category contains problem, same species.
	TierCase Tier = "case"
)

// Flow is the kind of session the probe tier detected.
type Flow string

const (
	FlowIntoxication Flow = "intoxication"
	FlowGeneral      Flow = "general"
)

// ResolverOptions tune the fallback sequence.
type ResolverOptions struct {
	// DisableCrossSpeciesFallback skips TierToxinAny, so a toxin known only
	// for another species yields no match.
	DisableCrossSpeciesFallback bool

	// QueryTimeout bounds each store query. Zero means no per-query timeout.
	QueryTimeout time.Duration
}

// ResolverHooks are optional callbacks for instrumentation. Nil funcs are skipped.
type ResolverHooks struct {
	OnQuery   func(collection string, tier Tier, duration float64, err error)
	OnResolve func(tier Tier, found bool)
}

// Resolver finds the single best reference record for a problem description.
// It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	store  ReferenceStore
	logger log.Logger
	opts   ResolverOptions
	hooks  ResolverHooks
}

// NewResolver creates a Resolver over the given reference store.
func NewResolver(store ReferenceStore, logger log.Logger, opts ResolverOptions, hooks ResolverHooks) *Resolver {
	if store == nil {
		panic(xerrors.New("reference store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Resolver{
		store:  store,
		logger: logger,
		opts:   opts,
		hooks:  hooks,
	}
}

// Probe reports whether the problem names a known toxin for any species.
// The wizard uses it to branch into the intoxication questions.
func (r *Resolver) Probe(ctx context.Context, problem string) (Flow, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return "", &ValidationError{Field: "problem", Reason: "required"}
	}

	rows, err := r.searchToxins(ctx, TierProbe, ToxinQuery{NameContains: problem, Limit: 1})
	if err != nil {
		return "", err
	}
	if len(rows) > 0 {
		return FlowIntoxication, nil
	}
	return FlowGeneral, nil
}

// Resolve runs the fallback tiers in order and returns the first record found.
// Tiers run sequentially; a later tier is only queried once the earlier one
// came back empty. No match is (nil, false, nil). A store failure aborts the
// remaining tiers and is returned as *StoreError.
func (r *Resolver) Resolve(ctx context.Context, in *Input) (*Match, bool, error) {
	species, problem, err := validateResolve(in)
	if err != nil {
		return nil, false, err
	}

	flow, err := r.Probe(ctx, problem)
	if err != nil {
		return nil, false, err
	}

	if flow == FlowIntoxication {
		rows, err := r.searchToxins(ctx, TierToxinSpecies, ToxinQuery{NameContains: problem, Species: species, Limit: 1})
		if err != nil {
			return nil, false, err
		}
		if len(rows) > 0 {
			return r.found(toxinMatch(rows[0], TierToxinSpecies, in))
		}

		if !r.opts.DisableCrossSpeciesFallback {
			rows, err = r.searchToxins(ctx, TierToxinAny, ToxinQuery{NameContains: problem, Limit: 1})
			if err != nil {
				return nil, false, err
			}
			if len(rows) > 0 {
				r.logger.Warn(ctx, "toxin matched on another species",
					"problem", problem,
					"species", species,
					"matched_species", rows[0].Species,
					"toxin_id", rows[0].ID,
				)
				return r.found(toxinMatch(rows[0], TierToxinAny, in))
			}
		}
		return r.notFound()
	}

	cases, err := r.searchCases(ctx, TierCase, CaseQuery{Text: problem, Species: species, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(cases) > 0 {
		rec := cases[0]
		return r.found(&Match{Kind: KindCase, Tier: TierCase, Case: &rec})
	}
	return r.notFound()
}

func validateResolve(in *Input) (Species, string, error) {
	if in == nil {
		return "", "", &ValidationError{Field: "input", Reason: "required"}
	}
	if strings.TrimSpace(string(in.Species)) == "" {
		return "", "", &ValidationError{Field: "species", Reason: "required"}
	}
	species, err := ParseSpecies(string(in.Species))
	if err != nil {
		return "", "", &ValidationError{Field: "species", Reason: err.Error()}
	}
	problem := strings.TrimSpace(in.Problem)
	if problem == "" {
		return "", "", &ValidationError{Field: "problem", Reason: "required"}
	}
	return species, problem, nil
}

// toxinMatch overlays the session's pet details onto a copy of the record so
// the result describes this animal rather than the generic reference entry.
func toxinMatch(rec ToxinRecord, tier Tier, in *Input) *Match {
	if in.Breed != "" {
		rec.ExampleBreed = in.Breed
	}
	if in.WeightKg != "" {
		rec.WeightKg = in.WeightKg
	}
	if in.AmountIngested != "" {
		rec.AmountIngested = in.AmountIngested
	}
	if in.TimeSinceIngestion != "" {
		rec.TimeSinceIngestion = in.TimeSinceIngestion
	}
	return &Match{Kind: KindToxin, Tier: tier, Toxin: &rec}
}

func (r *Resolver) found(m *Match) (*Match, bool, error) {
	if r.hooks.OnResolve != nil {
		r.hooks.OnResolve(m.Tier, true)
	}
	return m, true, nil
}

func (r *Resolver) notFound() (*Match, bool, error) {
	if r.hooks.OnResolve != nil {
		r.hooks.OnResolve("", false)
	}
	return nil, false, nil
}

func (r *Resolver) searchToxins(ctx context.Context, tier Tier, q ToxinQuery) ([]ToxinRecord, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.store.SearchToxins(ctx, q)
	r.observe(CollectionToxins, tier, start, err)
	if err != nil {
		r.logger.Error(ctx, err, "reference query failed", "collection", CollectionToxins, "tier", tier)
		return nil, &StoreError{Collection: CollectionToxins, Tier: tier, Err: err}
	}
	return rows, nil
}

func (r *Resolver) searchCases(ctx context.Context, tier Tier, q CaseQuery) ([]CaseRecord, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.store.SearchCases(ctx, q)
	r.observe(CollectionCases, tier, start, err)
	if err != nil {
		r.logger.Error(ctx, err, "reference query failed", "collection", CollectionCases, "tier", tier)
		return nil, &StoreError{Collection: CollectionCases, Tier: tier, Err: err}
	}
	return rows, nil
}

func (r *Resolver) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.QueryTimeout > 0 {
		return context.WithTimeout(ctx, r.opts.QueryTimeout)
	}
	return ctx, func() {}
}

func (r *Resolver) observe(collection string, tier Tier, start time.Time, err error) {
	if r.hooks.OnQuery != nil {
		r.hooks.OnQuery(collection, tier, time.Since(start).Seconds(), err)
	}
}
