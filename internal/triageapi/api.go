// Package triageapi exposes the triage service over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vettriage/internal/authmw"
	"github.com/linnemanlabs/vettriage/internal/triage"
)

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Classify(ctx context.Context, in *triage.Input) *triage.Assessment
	Probe(ctx context.Context, problem string) (triage.Flow, error)
	Resolve(ctx context.Context, in *triage.Input) (*triage.Assessment, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService

	adminToken string
	reference  triage.ReferenceStore
}

// Option configures optional API features.
type Option func(*API)

// WithAdmin enables the read-only reference listing under /api/v1/admin,
// protected by the given bearer token. An empty token leaves it disabled.
func WithAdmin(token string, store triage.ReferenceStore) Option {
	return func(a *API) {
		a.adminToken = token
		a.reference = store
	}
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	a := &API{
		logger: logger,
		svc:    svc,
	}
	for _, o := range opts {
		o(a)
	}
	if a.adminToken != "" && a.reference == nil {
		panic(xerrors.New("admin routes need a reference store"))
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/classify", a.handleClassify)
		r.Post("/probe", a.handleProbe)
		r.Post("/resolve", a.handleResolve)

		if a.adminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(authmw.BearerToken(a.adminToken))
				r.Get("/toxins", a.handleListToxins)
				r.Get("/cases", a.handleListCases)
			})
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing useful to do with a write error once headers are out
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
