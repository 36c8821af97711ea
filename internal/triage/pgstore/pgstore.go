// Package pgstore provides a PostgreSQL implementation of triage.ReferenceStore.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/vettriage/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store reads reference records from PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const toxinColumns = `id, species, example_breed, weight_kg, toxin_name, toxin_type,
	amount_ingested, mg_per_kg, clinical_threshold, symptoms, triage_level, recommendation`

const caseColumns = `id, category, species, symptoms, triage_level, recommendation`

// SearchToxins returns toxins whose name contains q.NameContains, case-insensitively.
func (s *Store) SearchToxins(ctx context.Context, q triage.ToxinQuery) ([]triage.ToxinRecord, error) {
	ctx, span := tracer.Start(ctx, "pgstore.SearchToxins", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.String("db.collection.name", "toxin_exposures"),
		attribute.String("triage.species", string(q.Species)),
	))
	defer span.End()

	query := `SELECT ` + toxinColumns + ` FROM toxin_exposures
		WHERE toxin_name ILIKE $1 ESCAPE '\'
		  AND ($2::text = '' OR species = $2)
		ORDER BY id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, containsPattern(q.NameContains), string(q.Species), limitArg(q.Limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query toxins: %w", err)
	}
	defer rows.Close()

	var out []triage.ToxinRecord
	for rows.Next() {
		r, err := scanToxin(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate toxins: %w", err)
	}

	span.SetAttributes(attribute.Int("db.response.returned_rows", len(out)))
	return out, nil
}

// SearchCases returns cases whose symptoms or category contains q.Text, case-insensitively.
func (s *Store) SearchCases(ctx context.Context, q triage.CaseQuery) ([]triage.CaseRecord, error) {
	ctx, span := tracer.Start(ctx, "pgstore.SearchCases", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.String("db.collection.name", "case_records"),
		attribute.String("triage.species", string(q.Species)),
	))
	defer span.End()

	query := `SELECT ` + caseColumns + ` FROM case_records
		WHERE (symptoms ILIKE $1 ESCAPE '\' OR category ILIKE $1 ESCAPE '\')
		  AND ($2::text = '' OR species = $2)
		ORDER BY id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, containsPattern(q.Text), string(q.Species), limitArg(q.Limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var out []triage.CaseRecord
	for rows.Next() {
		r, err := scanCase(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate cases: %w", err)
	}

	span.SetAttributes(attribute.Int("db.response.returned_rows", len(out)))
	return out, nil
}

// Seed upserts reference records in a single transaction. Existing rows with
// the same id are overwritten.
func (s *Store) Seed(ctx context.Context, toxins []triage.ToxinRecord, cases []triage.CaseRecord) error {
	ctx, span := tracer.Start(ctx, "pgstore.Seed", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
		attribute.Int("seed.toxins", len(toxins)),
		attribute.Int("seed.cases", len(cases)),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for i := range toxins {
		if err := upsertToxin(ctx, tx, &toxins[i]); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	for i := range cases {
		if err := upsertCase(ctx, tx, &cases[i]); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertToxin(ctx context.Context, tx pgx.Tx, r *triage.ToxinRecord) error {
	query := `INSERT INTO toxin_exposures (` + toxinColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT (id) DO UPDATE SET
		species            = EXCLUDED.species,
		example_breed      = EXCLUDED.example_breed,
		weight_kg          = EXCLUDED.weight_kg,
		toxin_name         = EXCLUDED.toxin_name,
		toxin_type         = EXCLUDED.toxin_type,
		amount_ingested    = EXCLUDED.amount_ingested,
		mg_per_kg          = EXCLUDED.mg_per_kg,
		clinical_threshold = EXCLUDED.clinical_threshold,
		symptoms           = EXCLUDED.symptoms,
		triage_level       = EXCLUDED.triage_level,
		recommendation     = EXCLUDED.recommendation`

	_, err := tx.Exec(ctx, query,
		r.ID, string(r.Species), r.ExampleBreed, r.WeightKg, r.ToxinName, r.ToxinType,
		r.AmountIngested, r.MgPerKg, r.ClinicalThreshold, r.Symptoms, string(r.TriageLevel), r.Recommendation,
	)
	if err != nil {
		return fmt.Errorf("upsert toxin %d: %w", r.ID, err)
	}
	return nil
}

func upsertCase(ctx context.Context, tx pgx.Tx, r *triage.CaseRecord) error {
	query := `INSERT INTO case_records (` + caseColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (id) DO UPDATE SET
		category       = EXCLUDED.category,
		species        = EXCLUDED.species,
		symptoms       = EXCLUDED.symptoms,
		triage_level   = EXCLUDED.triage_level,
		recommendation = EXCLUDED.recommendation`

	_, err := tx.Exec(ctx, query,
		r.ID, r.Category, string(r.Species), r.Symptoms, string(r.TriageLevel), r.Recommendation,
	)
	if err != nil {
		return fmt.Errorf("upsert case %d: %w", r.ID, err)
	}
	return nil
}

// scanToxin scans one row. Species and level are re-validated so a bad row
// surfaces as an error instead of an unknown level reaching callers.
func scanToxin(row pgx.Row) (triage.ToxinRecord, error) {
	var (
		r       triage.ToxinRecord
		species string
		level   string
	)
	err := row.Scan(
		&r.ID, &species, &r.ExampleBreed, &r.WeightKg, &r.ToxinName, &r.ToxinType,
		&r.AmountIngested, &r.MgPerKg, &r.ClinicalThreshold, &r.Symptoms, &level, &r.Recommendation,
	)
	if err != nil {
		return r, fmt.Errorf("scan toxin: %w", err)
	}
	if r.Species, err = triage.ParseSpecies(species); err != nil {
		return r, fmt.Errorf("toxin %d: %w", r.ID, err)
	}
	if r.TriageLevel, err = triage.ParseLevel(level); err != nil {
		return r, fmt.Errorf("toxin %d: %w", r.ID, err)
	}
	return r, nil
}

func scanCase(row pgx.Row) (triage.CaseRecord, error) {
	var (
		r       triage.CaseRecord
		species string
		level   string
	)
	err := row.Scan(&r.ID, &r.Category, &species, &r.Symptoms, &level, &r.Recommendation)
	if err != nil {
		return r, fmt.Errorf("scan case: %w", err)
	}
	if r.Species, err = triage.ParseSpecies(species); err != nil {
		return r, fmt.Errorf("case %d: %w", r.ID, err)
	}
	if r.TriageLevel, err = triage.ParseLevel(level); err != nil {
		return r, fmt.Errorf("case %d: %w", r.ID, err)
	}
	return r, nil
}

// containsPattern builds an ILIKE pattern matching s anywhere. LIKE
// metacharacters in s are matched literally.
func containsPattern(s string) string {
	return "%" + escapeLike(s) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL.
func limitArg(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
