// Package memstore provides an in-memory implementation of triage.ReferenceStore.
package memstore

import (
	"bytes"
	"cmp"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

//go:embed reference.yaml
var defaultDataset []byte

// Dataset is the on-disk layout of a reference file.
type Dataset struct {
	Toxins []triage.ToxinRecord `yaml:"toxins"`
	Cases  []triage.CaseRecord  `yaml:"cases"`
}

// Store holds reference records in memory, sorted by ID. It is immutable
// after construction and safe for concurrent use. Suitable for dev/testing
// and small deployments.
type Store struct {
	toxins []triage.ToxinRecord
	cases  []triage.CaseRecord
}

// New validates the records and returns a Store. Species and levels are
// normalized to their canonical values.
func New(toxins []triage.ToxinRecord, cases []triage.CaseRecord) (*Store, error) {
	s := &Store{
		toxins: make([]triage.ToxinRecord, 0, len(toxins)),
		cases:  make([]triage.CaseRecord, 0, len(cases)),
	}

	seen := make(map[int64]bool, len(toxins))
	for _, r := range toxins {
		if seen[r.ID] {
			return nil, fmt.Errorf("toxin %d: duplicate id", r.ID)
		}
		seen[r.ID] = true

		if strings.TrimSpace(r.ToxinName) == "" {
			return nil, fmt.Errorf("toxin %d: toxin_name is required", r.ID)
		}
		sp, err := triage.ParseSpecies(string(r.Species))
		if err != nil {
			return nil, fmt.Errorf("toxin %d: %w", r.ID, err)
		}
		lvl, err := triage.ParseLevel(string(r.TriageLevel))
		if err != nil {
			return nil, fmt.Errorf("toxin %d: %w", r.ID, err)
		}
		r.Species, r.TriageLevel = sp, lvl
		s.toxins = append(s.toxins, r)
	}

	seen = make(map[int64]bool, len(cases))
	for _, r := range cases {
		if seen[r.ID] {
			return nil, fmt.Errorf("case %d: duplicate id", r.ID)
		}
		seen[r.ID] = true

		sp, err := triage.ParseSpecies(string(r.Species))
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", r.ID, err)
		}
		lvl, err := triage.ParseLevel(string(r.TriageLevel))
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", r.ID, err)
		}
		r.Species, r.TriageLevel = sp, lvl
		s.cases = append(s.cases, r)
	}

	slices.SortFunc(s.toxins, func(a, b triage.ToxinRecord) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.cases, func(a, b triage.CaseRecord) int { return cmp.Compare(a.ID, b.ID) })

	return s, nil
}

// Load decodes a YAML dataset and builds a Store from it.
func Load(r io.Reader) (*Store, error) {
	var ds Dataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return New(ds.Toxins, ds.Cases)
}

// LoadFile reads a YAML dataset from path.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Default returns a Store over the bundled reference dataset.
func Default() (*Store, error) {
	return Load(bytes.NewReader(defaultDataset))
}

// Len returns the number of toxin and case records.
func (s *Store) Len() (toxins, cases int) {
	return len(s.toxins), len(s.cases)
}

// Records returns copies of all records in ID order, for seeding another store.
func (s *Store) Records() ([]triage.ToxinRecord, []triage.CaseRecord) {
	return slices.Clone(s.toxins), slices.Clone(s.cases)
}

// SearchToxins returns toxins whose name contains q.NameContains, case-insensitively.
func (s *Store) SearchToxins(ctx context.Context, q triage.ToxinQuery) ([]triage.ToxinRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(q.NameContains)
	var out []triage.ToxinRecord
	for _, r := range s.toxins {
		if q.Species != "" && r.Species != q.Species {
			continue
		}
		if !strings.Contains(strings.ToLower(r.ToxinName), needle) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// SearchCases returns cases whose symptoms or category contains q.Text, case-insensitively.
func (s *Store) SearchCases(ctx context.Context, q triage.CaseQuery) ([]triage.CaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(q.Text)
	var out []triage.CaseRecord
	for _, r := range s.cases {
		if q.Species != "" && r.Species != q.Species {
			continue
		}
		if !strings.Contains(strings.ToLower(r.Symptoms), needle) &&
			!strings.Contains(strings.ToLower(r.Category), needle) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
