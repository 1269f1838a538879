package risk

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine evaluates patients against one validated ThresholdConfig. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg     ThresholdConfig
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many patients EvaluateAll evaluates at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine refuses a zero ThresholdConfig: only NewThresholdConfig and
// DefaultThresholds produce usable values.
func NewEngine(cfg ThresholdConfig, opts ...Option) (*Engine, error) {
	if cfg.IsZero() {
		return nil, &ConfigError{Field: "thresholds", Reason: "not initialised"}
	}
	e := &Engine{cfg: cfg, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Thresholds returns the configuration the engine runs with.
func (e *Engine) Thresholds() ThresholdConfig {
	return e.cfg
}

// Evaluate runs the lab evaluator, the visit evaluator, the classifier and
// the flag generator for one patient.
func (e *Engine) Evaluate(p Patient, now time.Time) (Assessment, error) {
	labs, err := EvaluateLabs(p.LabPanels, e.cfg, now)
	if err != nil {
		return Assessment{}, withPatient(err, p.ID)
	}
	visits, err := EvaluateVisits(p.Visits, labs, e.cfg, now)
	if err != nil {
		return Assessment{}, withPatient(err, p.ID)
	}

	daysSincePanel := 0
	if labs.DaysSincePanel != nil {
		daysSincePanel = *labs.DaysSincePanel
	}

	return Assessment{
		PatientID:     p.ID,
		PatientName:   p.Name,
		RiskLevel:     Classify(labs.HbA1c, daysSincePanel, visits.DaysSinceVisit),
		Flags:         GenerateFlags(labs.HbA1c, labs.DaysSincePanel, visits.DaysSinceVisit, p.ID, now),
		Labs:          labs,
		Visits:        visits,
		LatestPanelAt: labs.MeasuredAt,
	}, nil
}

// Failure is a patient whose evaluation was aborted.
type Failure struct {
	PatientID string `json:"patientId"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

// BatchResult holds the ranked assessments of every patient that evaluated
// cleanly, and the failures in input order.
type BatchResult struct {
	Ranked   []Assessment `json:"ranked"`
	Failures []Failure    `json:"failures"`
}

// EvaluateAll evaluates every patient in parallel, waits for all of them and
// only then ranks. A patient with bad input is reported in Failures and does
// not stop the others. ctx cancellation stops scheduling further patients;
// the ones not reached are reported as failures carrying ctx.Err().
func (e *Engine) EvaluateAll(ctx context.Context, patients []Patient, now time.Time) BatchResult {
	assessments := make([]Assessment, len(patients))
	errs := make([]error, len(patients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range patients {
		if err := gctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			assessments[i], errs[i] = e.Evaluate(patients[i], now)
			return nil
		})
	}
	// Workers always return nil; errors are kept per patient in errs
	g.Wait()

	ok := make([]Assessment, 0, len(patients))
	failures := []Failure{}
	for i, p := range patients {
		if errs[i] != nil {
			failures = append(failures, Failure{PatientID: p.ID, Err: errs[i], Message: errs[i].Error()})
			continue
		}
		ok = append(ok, assessments[i])
	}

	return BatchResult{Ranked: Rank(ok), Failures: failures}
}

func withPatient(err error, patientID string) error {
	var ive *InputValidationError
	if errors.As(err, &ive) && ive.PatientID == "" {
		ive.PatientID = patientID
	}
	return err
}
