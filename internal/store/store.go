// Package store persists research runs and their dossiers.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dossier-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Callsign string         `json:"callsign,omitempty"`
	State    model.RunState `json:"state,omitempty"`
	Strategy string         `json:"strategy,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for research runs. Runs are only
// saved once they reach a terminal state.
type Store interface {
	SaveRun(ctx context.Context, rec *model.RunRecord) error
	GetRun(ctx context.Context, runID string) (*model.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)
	LatestDossier(ctx context.Context, callsign string) (*model.Dossier, error)

	Migrate(ctx context.Context) error
	Close() error
}

// runRow is the flattened column set shared by both backends.
type runRow struct {
	id         string
	callsign   string
	state      string
	strategy   string
	confidence float64
	costUSD    float64
	record     []byte
}

func toRow(rec *model.RunRecord) (*runRow, error) {
	if rec == nil || rec.ID == "" {
		return nil, eris.New("store: run record has no id")
	}
	if !rec.State.Terminal() {
		return nil, eris.Errorf("store: run %s is not terminal (%s)", rec.ID, rec.State)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal run")
	}
	row := &runRow{
		id:       rec.ID,
		callsign: rec.Callsign,
		state:    string(rec.State),
		strategy: rec.Strategy,
		costUSD:  rec.Usage.Cost,
		record:   data,
	}
	if rec.Dossier != nil {
		row.confidence = rec.Dossier.AggregateConfidence
	}
	return row, nil
}

func fromRecordJSON(data []byte) (*model.RunRecord, error) {
	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run")
	}
	return &rec, nil
}
