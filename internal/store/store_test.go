package store

import (
	"time"

	"github.com/sells-group/dossier-cli/internal/model"
)

func testRecord(id, callsign string, started time.Time, conf float64) *model.RunRecord {
	finished := started.Add(30 * time.Second)
	return &model.RunRecord{
		ID:       id,
		Callsign: callsign,
		Clues:    model.CompanyClues{Callsign: callsign, DBA: callsign + " Inc"},
		State:    model.RunDone,
		Strategy: "tiered",
		Identity: &model.CompanyIdentity{
			CurrentDomain: "aaloatomics.ai",
			Status:        model.IdentityRedirected,
			Confidence:    0.8,
		},
		Funding: model.Skipped[model.FundingIntelligence]("identity confidence 0.10 below 0.30"),
		Dossier: &model.Dossier{
			Callsign:            callsign,
			Markdown:            "# " + callsign,
			AggregateConfidence: conf,
			Strategy:            "tiered",
		},
		Usage:      model.TokenUsage{InputTokens: 100, OutputTokens: 50, Calls: 2, Cost: 0.02},
		StartedAt:  started,
		FinishedAt: &finished,
	}
}
