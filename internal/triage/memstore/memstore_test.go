package memstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

func defaultStore(t *testing.T) *Store {
	t.Helper()
	s, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return s
}

func toxinIDs(rows []triage.ToxinRecord) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func TestDefault_Loads(t *testing.T) {
	t.Parallel()

	s := defaultStore(t)
	toxins, cases := s.Len()
	if toxins == 0 || cases == 0 {
		t.Fatalf("Len() = %d, %d; want non-empty bundled dataset", toxins, cases)
	}
}

func TestStore_RecordsAreCopies(t *testing.T) {
	t.Parallel()

	s := defaultStore(t)
	toxins, cases := s.Records()
	nt, nc := s.Len()
	if len(toxins) != nt || len(cases) != nc {
		t.Fatalf("Records() = %d, %d; want %d, %d", len(toxins), len(cases), nt, nc)
	}
	for i := 1; i < len(toxins); i++ {
		if toxins[i-1].ID >= toxins[i].ID {
			t.Fatalf("toxins not in ID order at %d", i)
		}
	}

	toxins[0].ToxinName = "mutated"
	again, _ := s.Records()
	if again[0].ToxinName == "mutated" {
		t.Error("Records() exposed internal storage")
	}
}

func TestStore_SearchToxins(t *testing.T) {
	t.Parallel()

	s := defaultStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query triage.ToxinQuery
		want  []int64
	}{
		{"substring any species", triage.ToxinQuery{NameContains: "chocolate"}, []int64{1, 2}},
		{"case insensitive", triage.ToxinQuery{NameContains: "CHOCOLATE"}, []int64{1, 2}},
		{"species filter", triage.ToxinQuery{NameContains: "chocolate", Species: triage.SpeciesCat}, []int64{}},
		{"limit", triage.ToxinQuery{NameContains: "chocolate", Limit: 1}, []int64{1}},
		{"inner substring", triage.ToxinQuery{NameContains: "glycol"}, []int64{10}},
		{"no match", triage.ToxinQuery{NameContains: "bubblegum"}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rows, err := s.SearchToxins(ctx, tt.query)
			if err != nil {
				t.Fatalf("SearchToxins: %v", err)
			}
			got := toxinIDs(rows)
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestStore_SearchCases(t *testing.T) {
	t.Parallel()

	s := defaultStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		text    string
		species triage.Species
		wantID  int64
		wantLen int
	}{
		{"category match", "urinary", triage.SpeciesCat, 3, 1},
		{"symptoms match", "licking", triage.SpeciesDog, 4, 1},
		{"species filtered", "licking", triage.SpeciesCat, 0, 0},
		{"first by id", "gastrointestinal", triage.SpeciesDog, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rows, err := s.SearchCases(ctx, triage.CaseQuery{Text: tt.text, Species: tt.species})
			if err != nil {
				t.Fatalf("SearchCases: %v", err)
			}
			if len(rows) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(rows), tt.wantLen)
			}
			if tt.wantLen > 0 && rows[0].ID != tt.wantID {
				t.Errorf("rows[0].ID = %d, want %d", rows[0].ID, tt.wantID)
			}
		})
	}
}

func TestStore_CanceledContext(t *testing.T) {
	t.Parallel()

	s := defaultStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.SearchToxins(ctx, triage.ToxinQuery{NameContains: "lily"}); !errors.Is(err, context.Canceled) {
		t.Errorf("SearchToxins err = %v, want context.Canceled", err)
	}
	if _, err := s.SearchCases(ctx, triage.CaseQuery{Text: "skin"}); !errors.Is(err, context.Canceled) {
		t.Errorf("SearchCases err = %v, want context.Canceled", err)
	}
}

func TestNew_SortsAndNormalizes(t *testing.T) {
	t.Parallel()

	s, err := New(
		[]triage.ToxinRecord{
			{ID: 9, Species: "dog", ToxinName: "B", TriageLevel: "URGENT"},
			{ID: 2, Species: "CAT", ToxinName: "A", TriageLevel: "stable"},
		},
		[]triage.CaseRecord{
			{ID: 5, Species: "cat", Category: "x", TriageLevel: "Emergency"},
		},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows, _ := s.SearchToxins(context.Background(), triage.ToxinQuery{})
	if len(rows) != 2 || rows[0].ID != 2 || rows[1].ID != 9 {
		t.Fatalf("rows not sorted by id: %v", toxinIDs(rows))
	}
	if rows[0].Species != triage.SpeciesCat || rows[1].TriageLevel != triage.LevelUrgent {
		t.Errorf("not normalized: %+v", rows)
	}

	cases, _ := s.SearchCases(context.Background(), triage.CaseQuery{})
	if cases[0].TriageLevel != triage.LevelEmergency {
		t.Errorf("case level = %q, want %q", cases[0].TriageLevel, triage.LevelEmergency)
	}
}

func TestNew_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		toxins []triage.ToxinRecord
		cases  []triage.CaseRecord
		want   string
	}{
		{"bad level", []triage.ToxinRecord{{ID: 1, Species: "Dog", ToxinName: "x", TriageLevel: "critical"}}, nil, "invalid triage level"},
		{"bad species", []triage.ToxinRecord{{ID: 1, Species: "Horse", ToxinName: "x", TriageLevel: "stable"}}, nil, "unknown species"},
		{"empty name", []triage.ToxinRecord{{ID: 1, Species: "Dog", TriageLevel: "stable"}}, nil, "toxin_name is required"},
		{"duplicate toxin", []triage.ToxinRecord{
			{ID: 1, Species: "Dog", ToxinName: "x", TriageLevel: "stable"},
			{ID: 1, Species: "Dog", ToxinName: "y", TriageLevel: "stable"},
		}, nil, "duplicate id"},
		{"duplicate case", nil, []triage.CaseRecord{
			{ID: 3, Species: "Cat", TriageLevel: "stable"},
			{ID: 3, Species: "Cat", TriageLevel: "stable"},
		}, "duplicate id"},
		{"bad case level", nil, []triage.CaseRecord{{ID: 3, Species: "Cat", TriageLevel: "Stable-ish"}}, "invalid triage level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.toxins, tt.cases)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoad_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Load(strings.NewReader("toxins:\n  - id: 1\n    toxin: x\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_Empty(t *testing.T) {
	t.Parallel()

	s, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if toxins, cases := s.Len(); toxins != 0 || cases != 0 {
		t.Errorf("Len() = %d, %d; want 0, 0", toxins, cases)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ref.yaml")
	data := `toxins:
  - id: 1
    species: Cat
    toxin_name: Tulip
    triage_level: urgent
    recommendation: Call a vet.
cases: []
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	rows, _ := s.SearchToxins(context.Background(), triage.ToxinQuery{NameContains: "tulip"})
	if len(rows) != 1 || rows[0].Recommendation != "Call a vet." {
		t.Errorf("rows = %+v", rows)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := defaultStore(t)
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = s.SearchToxins(context.Background(), triage.ToxinQuery{NameContains: "o"})
			} else {
				_, _ = s.SearchCases(context.Background(), triage.CaseQuery{Text: "e"})
			}
		}()
	}
	wg.Wait()
}

// The bundled dataset drives the resolver end to end.
func TestDefault_WithResolver(t *testing.T) {
	t.Parallel()

	r := triage.NewResolver(defaultStore(t), log.Nop(), triage.ResolverOptions{}, triage.ResolverHooks{})
	ctx := context.Background()

	tests := []struct {
		name      string
		in        triage.Input
		wantKind  triage.MatchKind
		wantID    int64
		wantLevel triage.Level
		wantOK    bool
	}{
		{"dog chocolate", triage.Input{Species: triage.SpeciesDog, Problem: "chocolate"}, triage.KindToxin, 1, triage.LevelUrgent, true},
		{"cat lily", triage.Input{Species: triage.SpeciesCat, Problem: "lily"}, triage.KindToxin, 5, triage.LevelEmergency, true},
		{"cat xylitol falls back to dog record", triage.Input{Species: triage.SpeciesCat, Problem: "xylitol"}, triage.KindToxin, 3, triage.LevelEmergency, true},
		{"cat urinary case", triage.Input{Species: triage.SpeciesCat, Problem: "no urine"}, triage.KindCase, 3, triage.LevelEmergency, true},
		{"dog cough", triage.Input{Species: triage.SpeciesDog, Problem: "cough"}, triage.KindCase, 9, triage.LevelUrgent, true},
		{"nothing", triage.Input{Species: triage.SpeciesDog, Problem: "hiccups"}, "", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := tt.in
			m, ok, err := r.Resolve(ctx, &in)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if m.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", m.Kind, tt.wantKind)
			}
			var id int64
			if m.Toxin != nil {
				id = m.Toxin.ID
			} else {
				id = m.Case.ID
			}
			if id != tt.wantID {
				t.Errorf("ID = %d, want %d", id, tt.wantID)
			}
			if m.Level() != tt.wantLevel {
				t.Errorf("Level() = %q, want %q", m.Level(), tt.wantLevel)
			}
		})
	}
}
