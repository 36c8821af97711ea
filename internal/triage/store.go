package triage

import "context"

// Collection names, used for errors, metrics and cache keys.
const (
	CollectionToxins = "toxins"
	CollectionCases  = "cases"
)

// ToxinQuery selects toxin records whose name contains NameContains
// (case-insensitive). An empty Species matches every species.
type ToxinQuery struct {
	NameContains string
	Species      Species
	Limit        int
}

// CaseQuery selects case records whose symptoms or category contains Text
// (case-insensitive). An empty Species matches every species.
type CaseQuery struct {
	Text    string
	Species Species
	Limit   int
}

// ReferenceStore is the read-only query surface over the reference dataset.
// Results are ordered by ascending ID so index 0 is deterministic. A Limit of
// zero or less means no limit.
type ReferenceStore interface {
	SearchToxins(ctx context.Context, q ToxinQuery) ([]ToxinRecord, error)
	SearchCases(ctx context.Context, q CaseQuery) ([]CaseRecord, error)
}
