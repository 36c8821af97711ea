package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/vettriage/internal/postgres"
	"github.com/linnemanlabs/vettriage/internal/triage"
	"github.com/linnemanlabs/vettriage/internal/triage/pgstore"
)

// Rows written by these tests use ids from this base and toxin names with
// this prefix so they never collide with real reference data.
const (
	testIDBase = 9_000_000
	testPrefix = "zztest "
)

func openStore(t *testing.T) (*pgstore.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("VETTRIAGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VETTRIAGE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s, pool
}

func seedFixture(t *testing.T, s *pgstore.Store, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	toxins := []triage.ToxinRecord{
		{ID: testIDBase + 2, Species: triage.SpeciesCat, ToxinName: testPrefix + "Lily", TriageLevel: triage.LevelEmergency, Recommendation: "Go now."},
		{ID: testIDBase + 1, Species: triage.SpeciesDog, ToxinName: testPrefix + "Chocolate (dark)", WeightKg: "30", MgPerKg: "50", TriageLevel: triage.LevelUrgent, Recommendation: "See a vet today."},
		{ID: testIDBase + 3, Species: triage.SpeciesDog, ToxinName: testPrefix + "Chocolate (milk)", TriageLevel: triage.LevelStable},
		{ID: testIDBase + 4, Species: triage.SpeciesDog, ToxinName: testPrefix + "100% cocoa_powder", TriageLevel: triage.LevelUrgent},
	}
	cases := []triage.CaseRecord{
		{ID: testIDBase + 1, Category: "zztest Urinary", Species: triage.SpeciesCat, Symptoms: "straining, no urine", TriageLevel: triage.LevelEmergency},
		{ID: testIDBase + 2, Category: "zztest Skin", Species: triage.SpeciesDog, Symptoms: "itchy paws", TriageLevel: triage.LevelStable},
	}

	if err := s.Seed(ctx, toxins, cases); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM toxin_exposures WHERE id >= $1`, testIDBase)
		_, _ = pool.Exec(context.Background(), `DELETE FROM case_records WHERE id >= $1`, testIDBase)
	})
}

func TestSearchToxins(t *testing.T) {
	s, pool := openStore(t)
	seedFixture(t, s, pool)
	ctx := context.Background()

	rows, err := s.SearchToxins(ctx, triage.ToxinQuery{NameContains: "ZZTEST CHOCOLATE"})
	if err != nil {
		t.Fatalf("SearchToxins: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	assertEqual(t, "rows[0].ID", int64(testIDBase+1), rows[0].ID)
	assertEqual(t, "rows[1].ID", int64(testIDBase+3), rows[1].ID)
	assertEqual(t, "WeightKg", "30", rows[0].WeightKg)
	assertEqual(t, "MgPerKg", "50", rows[0].MgPerKg)
	assertEqual(t, "TriageLevel", triage.LevelUrgent, rows[0].TriageLevel)
	assertEqual(t, "Recommendation", "See a vet today.", rows[0].Recommendation)
}

func TestSearchToxins_SpeciesAndLimit(t *testing.T) {
	s, pool := openStore(t)
	seedFixture(t, s, pool)
	ctx := context.Background()

	rows, err := s.SearchToxins(ctx, triage.ToxinQuery{NameContains: testPrefix + "chocolate", Species: triage.SpeciesCat})
	if err != nil {
		t.Fatalf("SearchToxins: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("cat chocolate rows = %d, want 0", len(rows))
	}

	rows, err = s.SearchToxins(ctx, triage.ToxinQuery{NameContains: testPrefix + "chocolate", Limit: 1})
	if err != nil {
		t.Fatalf("SearchToxins: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
	assertEqual(t, "ID", int64(testIDBase+1), rows[0].ID)
}

func TestSearchToxins_LiteralMetacharacters(t *testing.T) {
	s, pool := openStore(t)
	seedFixture(t, s, pool)
	ctx := context.Background()

	rows, err := s.SearchToxins(ctx, triage.ToxinQuery{NameContains: "100% cocoa_"})
	if err != nil {
		t.Fatalf("SearchToxins: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}

	// "_" must not act as a single-character wildcard
	rows, err = s.SearchToxins(ctx, triage.ToxinQuery{NameContains: testPrefix + "Lil_"})
	if err != nil {
		t.Fatalf("SearchToxins: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("wildcard matched %d rows, want 0", len(rows))
	}
}

func TestSearchCases(t *testing.T) {
	s, pool := openStore(t)
	seedFixture(t, s, pool)
	ctx := context.Background()

	rows, err := s.SearchCases(ctx, triage.CaseQuery{Text: "zztest urinary", Species: triage.SpeciesCat})
	if err != nil {
		t.Fatalf("SearchCases: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
	assertEqual(t, "ID", int64(testIDBase+1), rows[0].ID)
	assertEqual(t, "TriageLevel", triage.LevelEmergency, rows[0].TriageLevel)

	rows, err = s.SearchCases(ctx, triage.CaseQuery{Text: "zztest skin", Species: triage.SpeciesCat})
	if err != nil {
		t.Fatalf("SearchCases: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("species filter ignored: %d rows", len(rows))
	}
}

func TestSeed_Overwrites(t *testing.T) {
	s, pool := openStore(t)
	seedFixture(t, s, pool)
	ctx := context.Background()

	updated := triage.ToxinRecord{
		ID: testIDBase + 2, Species: triage.SpeciesCat, ToxinName: testPrefix + "Lily",
		TriageLevel: triage.LevelEmergency, Recommendation: "Updated advice.",
	}
	if err := s.Seed(ctx, []triage.ToxinRecord{updated}, nil); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	rows, err := s.SearchToxins(ctx, triage.ToxinQuery{NameContains: testPrefix + "lily"})
	if err != nil {
		t.Fatalf("SearchToxins: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
	assertEqual(t, "Recommendation", "Updated advice.", rows[0].Recommendation)
}

func TestResolver_Postgres(t *testing.T) {
	s, pool := openStore(t)
	seedFixture(t, s, pool)

	r := triage.NewResolver(s, nil, triage.ResolverOptions{}, triage.ResolverHooks{})
	m, ok, err := r.Resolve(context.Background(), &triage.Input{Species: triage.SpeciesCat, Problem: testPrefix + "chocolate (dark)"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ok {
		t.Fatal("expected cross-species match")
	}
	assertEqual(t, "Tier", triage.TierToxinAny, m.Tier)
	assertEqual(t, "ID", int64(testIDBase+1), m.Toxin.ID)
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %v, got %v", field, want, got)
	}
}
