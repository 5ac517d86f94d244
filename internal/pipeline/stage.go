package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/resilience"
)

// StageError records which stage failed and why.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s stage failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// runStage executes fn under the stage's bounded retry policy and wraps the
// final error in a StageError.
func runStage[T any](ctx context.Context, p Policy, stage, callsign string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, int, error) {
	log := zap.L().With(zap.String("callsign", callsign), zap.String("stage", stage))
	log.Info("pipeline: stage started")

	start := time.Now()
	val, attempts, err := resilience.Retry(ctx, p.retryPolicy(stage, callsign, timeout), fn)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("pipeline: stage failed",
			zap.Int("attempts", attempts),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		var zero T
		return zero, attempts, &StageError{Stage: stage, Attempts: attempts, Err: err}
	}
	log.Info("pipeline: stage complete",
		zap.Int("attempts", attempts),
		zap.Int64("duration_ms", duration),
	)
	return val, attempts, nil
}

// reason performs one reasoning call and attributes its usage to the run's
// ledger.
func reason(ctx context.Context, r Reasoner, req ReasonRequest) (*ReasonResponse, error) {
	if r == nil {
		return nil, eris.Errorf("pipeline: %s: no reasoner configured", req.Stage)
	}
	resp, err := r.Reason(ctx, req)
	if err != nil {
		return nil, err
	}
	if l := ledgerFrom(ctx); l != nil {
		l.Record(req.Stage, resp.Provider, resp.Model, resp.InputTokens, resp.OutputTokens)
	}
	return resp, nil
}

// promptJSON renders prompt input data as indented JSON.
func promptJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func floatPtr(v float64) *float64 {
	return &v
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
