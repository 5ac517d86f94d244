package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/cost"
	"github.com/sells-group/dossier-cli/internal/model"
)

// Run is the single context of one company's research run. Stages running
// concurrently write their outputs through it.
type Run struct {
	mu     sync.Mutex
	record model.RunRecord
	ledger *cost.Ledger
	now    func() time.Time
}

// NewRun starts a run in the pending state.
func NewRun(clues model.CompanyClues, ledger *cost.Ledger) *Run {
	if ledger == nil {
		ledger = cost.NewLedger(nil)
	}
	r := &Run{ledger: ledger, now: time.Now}
	r.record = model.RunRecord{
		ID:        uuid.New().String(),
		Callsign:  clues.Callsign,
		Clues:     clues.Clone(),
		State:     model.RunPending,
		StartedAt: r.now().UTC(),
	}
	return r
}

// ID returns the run ID.
func (r *Run) ID() string {
	return r.record.ID
}

// Clues returns a copy of the run's input clues.
func (r *Run) Clues() model.CompanyClues {
	return r.record.Clues.Clone()
}

// Ledger returns the run's cost ledger.
func (r *Run) Ledger() *cost.Ledger {
	return r.ledger
}

// State returns the current state.
func (r *Run) State() model.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record.State
}

// Transition moves the run to a new state. Edges outside the state machine
// are rejected.
func (r *Run) Transition(to model.RunState, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.record.State
	if !model.CanTransition(from, to) {
		return eris.Errorf("pipeline: illegal transition %s -> %s", from, to)
	}
	r.record.State = to
	r.record.Transitions = append(r.record.Transitions, model.Transition{
		From: from,
		To:   to,
		At:   r.now().UTC(),
		Note: note,
	})
	zap.L().Info("pipeline: state transition",
		zap.String("run_id", r.record.ID),
		zap.String("callsign", r.record.Callsign),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("note", note),
	)
	return nil
}

// SetIdentity records the resolved identity.
func (r *Run) SetIdentity(id model.CompanyIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Identity = &id
}

// SetFunding records the funding outcome.
func (r *Run) SetFunding(o model.Outcome[model.FundingIntelligence]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Funding = o
}

// SetProfile records the profile outcome.
func (r *Run) SetProfile(o model.Outcome[model.CompanyProfileIntel]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Profile = o
}

// SetNews records the news outcome.
func (r *Run) SetNews(o model.Outcome[model.NewsBundle]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.News = o
}

// AddFailure records an error that degraded a stage or ended a strategy.
func (r *Run) AddFailure(strategy, stage string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Failures = append(r.record.Failures, model.StageFailure{
		Strategy: strategy,
		Stage:    stage,
		Message:  err.Error(),
	})
}

// Input returns the current stage outputs as synthesis input.
func (r *Run) Input() SynthesisInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := SynthesisInput{
		Clues:   r.record.Clues.Clone(),
		Funding: r.record.Funding,
		Profile: r.record.Profile,
		News:    r.record.News,
	}
	if r.record.Identity != nil {
		id := *r.record.Identity
		in.Identity = &id
	}
	return in
}

func (r *Run) resetOutputs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.ResetStageOutputs()
}

func (r *Run) setStrategy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Strategy = name
}

func (r *Run) finish(d *model.Dossier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	if d != nil {
		d.Strategy = r.record.Strategy
		d.GeneratedAt = now
		r.record.Dossier = d
	}
	r.record.FinishedAt = &now
	r.record.Usage = r.ledger.Total()
}

func (r *Run) markPublished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Published = true
}

// Record returns a copy of the run record.
func (r *Run) Record() *model.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record
	rec.Clues = r.record.Clues.Clone()
	rec.Transitions = append([]model.Transition(nil), r.record.Transitions...)
	rec.Failures = append([]model.StageFailure(nil), r.record.Failures...)
	return &rec
}
