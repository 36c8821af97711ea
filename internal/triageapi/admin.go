package triageapi

import (
	"net/http"
	"strconv"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

const maxAdminLimit = 500

// adminQuery parses ?q=&species=&limit= shared by both listings.
func adminQuery(r *http.Request) (text string, species triage.Species, limit int, msg string) {
	qs := r.URL.Query()
	text = qs.Get("q")

	if s := qs.Get("species"); s != "" {
		sp, err := triage.ParseSpecies(s)
		if err != nil {
			return "", "", 0, err.Error()
		}
		species = sp
	}

	limit = 100
	if s := qs.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAdminLimit {
			return "", "", 0, "limit must be between 1 and " + strconv.Itoa(maxAdminLimit)
		}
		limit = n
	}
	return text, species, limit, ""
}

func (a *API) handleListToxins(w http.ResponseWriter, r *http.Request) {
	text, species, limit, msg := adminQuery(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	rows, err := a.reference.SearchToxins(r.Context(), triage.ToxinQuery{NameContains: text, Species: species, Limit: limit})
	if err != nil {
		a.logger.Error(r.Context(), err, "admin toxin listing failed")
		writeError(w, http.StatusServiceUnavailable, triage.StoreUnavailableMessage)
		return
	}
	if rows == nil {
		rows = []triage.ToxinRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"toxins": rows})
}

func (a *API) handleListCases(w http.ResponseWriter, r *http.Request) {
	text, species, limit, msg := adminQuery(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	rows, err := a.reference.SearchCases(r.Context(), triage.CaseQuery{Text: text, Species: species, Limit: limit})
	if err != nil {
		a.logger.Error(r.Context(), err, "admin case listing failed")
		writeError(w, http.StatusServiceUnavailable, triage.StoreUnavailableMessage)
		return
	}
	if rows == nil {
		rows = []triage.CaseRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": rows})
}
