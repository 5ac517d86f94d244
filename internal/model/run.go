package model

import (
	"time"
)

// RunState is a state of the per-company research state machine.
type RunState string

const (
	RunPending               RunState = "pending"
	RunIdentityPending       RunState = "identity_pending"
	RunIdentityResolved      RunState = "identity_resolved"
	RunFundingPending        RunState = "funding_pending"
	RunProfilePending        RunState = "profile_pending"
	RunSynthesizing          RunState = "synthesizing"
	RunFailed                RunState = "failed"
	RunLegacyFallback        RunState = "legacy_fallback"
	RunDeterministicFallback RunState = "deterministic_fallback"
	RunDone                  RunState = "done"
	RunCancelled             RunState = "cancelled"
)

var runTransitions = map[RunState][]RunState{
	RunPending:               {RunIdentityPending, RunLegacyFallback, RunFailed, RunDeterministicFallback, RunCancelled},
	RunIdentityPending:       {RunIdentityResolved, RunFailed, RunCancelled},
	RunIdentityResolved:      {RunFundingPending, RunProfilePending, RunSynthesizing, RunFailed, RunCancelled},
	RunFundingPending:        {RunProfilePending, RunSynthesizing, RunFailed, RunCancelled},
	RunProfilePending:        {RunSynthesizing, RunFailed, RunCancelled},
	RunSynthesizing:          {RunDone, RunFailed, RunCancelled},
	RunFailed:                {RunLegacyFallback, RunDeterministicFallback, RunCancelled},
	RunLegacyFallback:        {RunDone, RunFailed, RunCancelled},
	RunDeterministicFallback: {RunDone, RunCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to RunState) bool {
	for _, s := range runTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a run.
func (s RunState) Terminal() bool {
	return s == RunDone || s == RunCancelled
}

// Transition is one recorded state change.
type Transition struct {
	From RunState  `json:"from" yaml:"from"`
	To   RunState  `json:"to" yaml:"to"`
	At   time.Time `json:"at" yaml:"at"`
	Note string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// StageFailure records an error that caused a stage to degrade or a strategy
// to be abandoned.
type StageFailure struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	Stage    string `json:"stage" yaml:"stage"`
	Message  string `json:"message" yaml:"message"`
}

// RunRecord is the single context for one company's research run. It owns one
// instance of every stage output.
type RunRecord struct {
	ID          string                       `json:"id" yaml:"id"`
	Callsign    string                       `json:"callsign" yaml:"callsign"`
	Clues       CompanyClues                 `json:"clues" yaml:"clues"`
	State       RunState                     `json:"state" yaml:"state"`
	Strategy    string                       `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Transitions []Transition                 `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Identity    *CompanyIdentity             `json:"identity,omitempty" yaml:"identity,omitempty"`
	Funding     Outcome[FundingIntelligence] `json:"funding" yaml:"funding"`
	Profile     Outcome[CompanyProfileIntel] `json:"profile" yaml:"profile"`
	News        Outcome[NewsBundle]          `json:"news" yaml:"news"`
	Dossier     *Dossier                     `json:"dossier,omitempty" yaml:"dossier,omitempty"`
	Usage       TokenUsage                   `json:"usage" yaml:"usage"`
	Failures    []StageFailure               `json:"failures,omitempty" yaml:"failures,omitempty"`
	Published   bool                         `json:"published" yaml:"published"`
	StartedAt   time.Time                    `json:"started_at" yaml:"started_at"`
	FinishedAt  *time.Time                   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// ResetStageOutputs clears stage results left by an abandoned strategy.
func (r *RunRecord) ResetStageOutputs() {
	r.Identity = nil
	r.Funding = Outcome[FundingIntelligence]{}
	r.Profile = Outcome[CompanyProfileIntel]{}
	r.News = Outcome[NewsBundle]{}
	r.Dossier = nil
}

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	ID         string    `json:"id" yaml:"id"`
	Callsign   string    `json:"callsign" yaml:"callsign"`
	State      RunState  `json:"state" yaml:"state"`
	Strategy   string    `json:"strategy" yaml:"strategy"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	CostUSD    float64   `json:"cost_usd" yaml:"cost_usd"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
}

// TokenUsage tracks token consumption and attributed cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	Calls        int     `json:"calls" yaml:"calls"`
	Cost         float64 `json:"cost" yaml:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Calls += other.Calls
	t.Cost += other.Cost
}
