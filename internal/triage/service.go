package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Notifier delivers emergency assessments to a human channel.
type Notifier interface {
	Send(ctx context.Context, a *Assessment) error
}

// Service is the business boundary for triage operations. Each call runs
// exactly one strategy: keyword classification or reference matching.
type Service struct {
	resolver *Resolver
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(resolver *Resolver, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Classify assesses the input with the keyword classifier. It never fails.
func (s *Service) Classify(ctx context.Context, in *Input) *Assessment {
	res := Classify(in.Symptoms, in.TimeElapsed)
	emergency, urgent := MatchedSigns(in.Symptoms, in.TimeElapsed)

	a := &Assessment{
		ID:             ulid.Make().String(),
		Source:         SourceKeyword,
		Level:          res.Level,
		Recommendation: res.Recommendation,
		Signs:          append(emergency, urgent...),
		Input:          echoInput(in),
		CreatedAt:      time.Now(),
	}

	s.logger.Info(ctx, "keyword triage",
		"assessment_id", a.ID,
		"species", in.Species,
		"triage_level", a.Level,
		"emergency_signs", len(emergency),
		"urgent_signs", len(urgent),
	)

	s.record(ctx, a)
	return a
}

// Probe reports which wizard flow a problem description belongs to.
func (s *Service) Probe(ctx context.Context, problem string) (Flow, error) {
	flow, err := s.resolver.Probe(ctx, problem)
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.ProbesTotal.WithLabelValues(string(flow)).Inc()
	}
	return flow, nil
}

// Resolve assesses the input against the reference dataset. ok is false
// when no record matched; err is a *ValidationError or *StoreError.
func (s *Service) Resolve(ctx context.Context, in *Input) (*Assessment, bool, error) {
	m, ok, err := s.resolver.Resolve(ctx, in)
	if err != nil {
		return nil, false, err
	}

	L := s.logger.With("species", in.Species, "problem", in.Problem)
	if !ok {
		L.Info(ctx, "no reference match")
		return nil, false, nil
	}

	src := SourceCase
	if m.Kind == KindToxin {
		src = SourceToxin
	}

	a := &Assessment{
		ID:             ulid.Make().String(),
		Source:         src,
		Level:          m.Level(),
		Recommendation: m.Recommendation(),
		Match:          m,
		Input:          echoInput(in),
		CreatedAt:      time.Now(),
	}

	L.Info(ctx, "reference match",
		"assessment_id", a.ID,
		"kind", m.Kind,
		"tier", m.Tier,
		"triage_level", a.Level,
	)

	s.record(ctx, a)
	return a, true, nil
}

// echoInput copies the input with species casing normalised to the canonical
// enum. Unknown species are echoed as sent.
func echoInput(in *Input) Input {
	echo := *in
	if sp, err := ParseSpecies(string(in.Species)); err == nil {
		echo.Species = sp
	}
	return echo
}

func (s *Service) record(ctx context.Context, a *Assessment) {
	if s.metrics != nil {
		s.metrics.AssessmentsTotal.WithLabelValues(string(a.Source), string(a.Level)).Inc()
	}

	if a.Level != LevelEmergency || s.notifier == nil {
		return
	}

	// detach from the request so the post outlives the response
	go s.notify(context.WithoutCancel(ctx), a)
}

func (s *Service) notify(ctx context.Context, a *Assessment) {
	status := "success"
	if err := s.notifier.Send(ctx, a); err != nil {
		status = "error"
		s.logger.Error(ctx, err, "failed to send emergency notification", "assessment_id", a.ID)
	}
	if s.metrics != nil {
		s.metrics.NotificationsTotal.WithLabelValues(status).Inc()
	}
}
