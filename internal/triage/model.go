package triage

import (
	"fmt"
	"strings"
	"time"
)

// Level is a triage tier.
type Level string

const (
	// LevelStable means monitor at home
	LevelStable Level = "stable"

	// LevelUrgent means see a vet within 24-48 hours
	LevelUrgent Level = "urgent"

	// LevelEmergency means go to a clinic immediately
	LevelEmergency Level = "emergency"
)

// Severity orders levels: emergency > urgent > stable. Unknown levels are 0.
func (l Level) Severity() int {
	switch l {
	case LevelStable:
		return 1
	case LevelUrgent:
		return 2
	case LevelEmergency:
		return 3
	default:
		return 0
	}
}

// ParseLevel normalizes a stored or user supplied level. Anything outside the
// three tiers is rejected.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l.Severity() == 0 {
		return "", fmt.Errorf("invalid triage level %q", s)
	}
	return l, nil
}

// Species of the animal being triaged.
type Species string

const (
	SpeciesDog Species = "Dog"
	SpeciesCat Species = "Cat"
)

// ParseSpecies accepts any casing and returns the canonical value.
func ParseSpecies(s string) (Species, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dog":
		return SpeciesDog, nil
	case "cat":
		return SpeciesCat, nil
	default:
		return "", fmt.Errorf("unknown species %q", s)
	}
}

// Sex is the combined gender and neuter status.
type Sex string

const (
	SexFemaleEntire   Sex = "FE"
	SexMaleEntire     Sex = "ME"
	SexFemaleNeutered Sex = "FN"
	SexMaleNeutered   Sex = "MN"
)

// ElapsedBuckets are the fixed, ordered answers to "when did these symptoms start".
var ElapsedBuckets = []string{
	"<30 minutes ago",
	"1-2 hours ago",
	"less than 4 - 6 hours ago",
	"less than 12 hours ago",
	"less than 24 hours ago",
	"more than 24-48 hours ago",
}

// Input is the complete, immutable record assembled by the intake wizard.
type Input struct {
	Species     Species `json:"species,omitempty"`
	Breed       string  `json:"breed,omitempty"`
	Age         string  `json:"age,omitempty"`
	Sex         Sex     `json:"sex,omitempty"`
	Symptoms    string  `json:"symptoms,omitempty"`
	TimeElapsed string  `json:"time_elapsed,omitempty"`

	// Problem is the suspected cause, usually a toxin name.
	Problem string `json:"problem,omitempty"`

	// Display-only context, overlaid onto toxin matches.
	WeightKg           string `json:"weight_kg,omitempty"`
	AmountIngested     string `json:"amount_ingested,omitempty"`
	TimeSinceIngestion string `json:"time_since_ingestion,omitempty"`
}

// Result is the outcome of keyword classification.
type Result struct {
	Level          Level  `json:"triage_level"`
	Recommendation string `json:"recommendation"`
}

// ToxinRecord is a reference entry describing a known substance exposure.
type ToxinRecord struct {
	ID                 int64   `json:"id" yaml:"id"`
	Species            Species `json:"species" yaml:"species"`
	ExampleBreed       string  `json:"example_breed,omitempty" yaml:"example_breed"`
	WeightKg           string  `json:"weight_kg,omitempty" yaml:"weight_kg"`
	ToxinName          string  `json:"toxin_name" yaml:"toxin_name"`
	ToxinType          string  `json:"toxin_type,omitempty" yaml:"toxin_type"`
	AmountIngested     string  `json:"amount_ingested,omitempty" yaml:"amount_ingested"`
	MgPerKg            string  `json:"mg_per_kg,omitempty" yaml:"mg_per_kg"`
	ClinicalThreshold  string  `json:"clinical_threshold,omitempty" yaml:"clinical_threshold"`
	Symptoms           string  `json:"symptoms,omitempty" yaml:"symptoms"`
	TriageLevel        Level   `json:"triage_level" yaml:"triage_level"`
	Recommendation     string  `json:"recommendation" yaml:"recommendation"`
	TimeSinceIngestion string  `json:"time_since_ingestion,omitempty" yaml:"-"`
}

// CaseRecord is a reference entry describing a known symptom presentation.
type CaseRecord struct {
	ID             int64   `json:"id" yaml:"id"`
	Category       string  `json:"category" yaml:"category"`
	Species        Species `json:"species" yaml:"species"`
	Symptoms       string  `json:"symptoms" yaml:"symptoms"`
	TriageLevel    Level   `json:"triage_level" yaml:"triage_level"`
	Recommendation string  `json:"recommendation" yaml:"recommendation"`
}

// MatchKind tells which reference collection a match came from.
type MatchKind string

const (
	KindToxin MatchKind = "toxin"
	KindCase  MatchKind = "case"
)

// Match is the single best reference record found by the Resolver.
type Match struct {
	Kind  MatchKind    `json:"kind"`
	Tier  Tier         `json:"tier"`
	Toxin *ToxinRecord `json:"toxin,omitempty"`
	Case  *CaseRecord  `json:"case,omitempty"`
}

// Level returns the matched record's own triage level.
func (m *Match) Level() Level {
	if m.Toxin != nil {
		return m.Toxin.TriageLevel
	}
	if m.Case != nil {
		return m.Case.TriageLevel
	}
	return ""
}

// Recommendation returns the matched record's recommendation verbatim.
func (m *Match) Recommendation() string {
	if m.Toxin != nil {
		return m.Toxin.Recommendation
	}
	if m.Case != nil {
		return m.Case.Recommendation
	}
	return ""
}

// Source identifies which strategy produced an Assessment.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceToxin   Source = "toxin"
	SourceCase    Source = "case"
)

// Assessment is what the Service hands back to callers.
type Assessment struct {
	ID             string    `json:"id"`
	Source         Source    `json:"source"`
	Level          Level     `json:"triage_level"`
	Recommendation string    `json:"recommendation"`
	Signs          []string  `json:"signs,omitempty"`
	Match          *Match    `json:"match,omitempty"`
	Input          Input     `json:"input"`
	CreatedAt      time.Time `json:"created_at"`
}
