package triage

import "strings"

// EmergencySigns indicate an acute, life-threatening presentation.
var EmergencySigns = []string{
	"collapse",
	"trouble breathing",
	"difficulty breathing",
	"unproductive vomiting",
	"cyanotic",
	"seizure",
	"no urine",
	"straining to urinate",
	"blue gums",
	"white gums",
	"unresponsive",
	"bleeding that won't stop",
	"distended abdomen",
	"shock",
}

// UrgentSigns indicate a significant presentation that is not immediately life-threatening.
var UrgentSigns = []string{
	"vomiting",
	"diarrhea",
	"lethargy",
	"not eating",
	"weakness",
	"blood in urine",
	"shaking",
	"pale gums",
	"tremors",
}

const deteriorationWatch = "Monitor for signs of deterioration including worsening vomiting or diarrhoea, " +
	"lethargy, collapse, tremoring, shivering and pale mucous membranes."

// Recommendations per tier. Classification output depends only on the tier.
const (
	RecommendEmergency = "Your pet may require urgent veterinary care. Go to a veterinary clinic immediately."
	RecommendUrgent    = "See a vet within 24-48 hours. " + deteriorationWatch
	RecommendStable    = "Monitor at home. If symptoms worsen, see a vet within the week. " + deteriorationWatch
)

// Classify maps free-text symptoms plus the elapsed-time answer to a tier.
// Matching is lowercase substring containment, so a keyword inside a longer
// word still counts. Emergency signs always win over urgent signs.
func Classify(symptoms, elapsed string) Result {
	text := scanText(symptoms, elapsed)

	if containsAny(text, EmergencySigns) {
		return Result{Level: LevelEmergency, Recommendation: RecommendEmergency}
	}
	if containsAny(text, UrgentSigns) {
		return Result{Level: LevelUrgent, Recommendation: RecommendUrgent}
	}
	return Result{Level: LevelStable, Recommendation: RecommendStable}
}

// MatchedSigns reports every keyword found in the scanned text, per tier.
// It does not influence Classify.
func MatchedSigns(symptoms, elapsed string) (emergency, urgent []string) {
	text := scanText(symptoms, elapsed)
	for _, kw := range EmergencySigns {
		if strings.Contains(text, kw) {
			emergency = append(emergency, kw)
		}
	}
	for _, kw := range UrgentSigns {
		if strings.Contains(text, kw) {
			urgent = append(urgent, kw)
		}
	}
	return emergency, urgent
}

func scanText(symptoms, elapsed string) string {
	return strings.ToLower(symptoms + " " + elapsed)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
