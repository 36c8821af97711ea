package triageapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

type probeRequest struct {
	Problem string `json:"problem"`
}

type probeResponse struct {
	Flow triage.Flow `json:"flow"`
}

// decode reads the body, validates it against schema and unmarshals it into
// dst. On failure it has already written the 400 response.
func (a *API) decode(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		// MaxBody upstream turns an oversized body into a read error
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := validateBody(schema, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	var in triage.Input
	if !a.decode(w, r, classifySchema, &in) {
		return
	}

	res := a.svc.Classify(r.Context(), &in)

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("vettriage.assessment.id", res.ID),
		attribute.String("vettriage.triage.source", string(res.Source)),
		attribute.String("vettriage.triage.level", string(res.Level)),
	)

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if !a.decode(w, r, probeSchema, &req) {
		return
	}

	flow, err := a.svc.Probe(r.Context(), req.Problem)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("vettriage.probe.flow", string(flow)))
	writeJSON(w, http.StatusOK, probeResponse{Flow: flow})
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	var in triage.Input
	if !a.decode(w, r, resolveSchema, &in) {
		return
	}

	span := trace.SpanFromContext(r.Context())

	res, ok, err := a.svc.Resolve(r.Context(), &in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if !ok {
		span.SetAttributes(attribute.Bool("vettriage.resolve.found", false))
		writeError(w, http.StatusNotFound, triage.NoMatchMessage)
		return
	}

	span.SetAttributes(
		attribute.Bool("vettriage.resolve.found", true),
		attribute.String("vettriage.assessment.id", res.ID),
		attribute.String("vettriage.triage.source", string(res.Source)),
		attribute.String("vettriage.triage.level", string(res.Level)),
		attribute.String("vettriage.resolve.tier", string(res.Match.Tier)),
	)

	writeJSON(w, http.StatusOK, res)
}

// writeServiceError maps service errors onto status codes. Store failures
// are retryable and reported as 503 without leaking the cause.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, triage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, triage.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, triage.StoreUnavailableMessage)
	default:
		a.logger.Error(r.Context(), err, "triage request failed", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
