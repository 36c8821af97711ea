package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// fakeStore is an in-package ReferenceStore with call recording and
// error injection by call index.
type fakeStore struct {
	mu     sync.Mutex
	toxins []ToxinRecord
	cases  []CaseRecord
	calls  []string
	failAt map[int]error // call index (0-based) -> error
}

var errBoom = errors.New("connection refused")

func (f *fakeStore) SearchToxins(ctx context.Context, q ToxinQuery) ([]ToxinRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.calls)
	label := "toxins"
	if q.Species != "" {
		label += ":" + string(q.Species)
	}
	f.calls = append(f.calls, label)
	if err := f.failAt[idx]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []ToxinRecord
	for _, r := range f.toxins {
		if !strings.Contains(strings.ToLower(r.ToxinName), strings.ToLower(q.NameContains)) {
			continue
		}
		if q.Species != "" && r.Species != q.Species {
			continue
		}
		out = append(out, r)
	}
	return limit(out, q.Limit), nil
}

func (f *fakeStore) SearchCases(ctx context.Context, q CaseQuery) ([]CaseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.calls)
	label := "cases"
	if q.Species != "" {
		label += ":" + string(q.Species)
	}
	f.calls = append(f.calls, label)
	if err := f.failAt[idx]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.ToLower(q.Text)
	var out []CaseRecord
	for _, r := range f.cases {
		if !strings.Contains(strings.ToLower(r.Symptoms), text) && !strings.Contains(strings.ToLower(r.Category), text) {
			continue
		}
		if q.Species != "" && r.Species != q.Species {
			continue
		}
		out = append(out, r)
	}
	return limit(out, q.Limit), nil
}

func (f *fakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func limit[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

func referenceFixture() *fakeStore {
	return &fakeStore{
		toxins: []ToxinRecord{
			{
				ID: 1, Species: SpeciesDog, ExampleBreed: "Labrador", WeightKg: "30",
				ToxinName: "Chocolate (dark)", ToxinType: "methylxanthine", AmountIngested: "100g",
				MgPerKg: "20", ClinicalThreshold: "20 mg/kg theobromine",
				Symptoms: "vomiting, restlessness", TriageLevel: LevelUrgent,
				Recommendation: "Induce emesis at a clinic within 2 hours.",
			},
			{
				ID: 2, Species: SpeciesCat, ExampleBreed: "Siamese", WeightKg: "4",
				ToxinName: "Xylitol", ToxinType: "sugar alcohol", AmountIngested: "1 piece gum",
				Symptoms: "weakness", TriageLevel: LevelEmergency,
				Recommendation: "Go to a clinic now, hypoglycaemia risk.",
			},
			{
				ID: 3, Species: SpeciesCat, ToxinName: "Lily", ToxinType: "plant",
				Symptoms: "vomiting, no urine", TriageLevel: LevelEmergency,
				Recommendation: "Any lily exposure in cats is an emergency.",
			},
			{
				ID: 4, Species: SpeciesDog, ToxinName: "Milk chocolate", ToxinType: "methylxanthine",
				TriageLevel: LevelStable, Recommendation: "Monitor at home.",
			},
		},
		cases: []CaseRecord{
			{
				ID: 10, Category: "Behaviour", Species: SpeciesDog, Symptoms: "chocolate craving",
				TriageLevel: LevelStable, Recommendation: "No action needed.",
			},
			{
				ID: 11, Category: "Skin", Species: SpeciesDog, Symptoms: "itchy paw, licking",
				TriageLevel: LevelStable, Recommendation: "Book a routine appointment.",
			},
			{
				ID: 12, Category: "Urinary", Species: SpeciesCat, Symptoms: "straining, no urine",
				TriageLevel: LevelEmergency, Recommendation: "Blocked cats die. Go now.",
			},
		},
	}
}
