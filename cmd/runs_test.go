package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/dossier-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	runs := []model.RunSummary{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Callsign:   "AALO",
			State:      model.RunDone,
			Strategy:   "tiered",
			Confidence: 0.82,
			CostUSD:    0.0412,
			StartedAt:  now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Callsign:  "GHOST",
			State:     model.RunCancelled,
			StartedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "CALLSIGN")
	assert.Contains(t, output, "STRATEGY")
	assert.Contains(t, output, "AALO")
	assert.Contains(t, output, "tiered")
	assert.Contains(t, output, "0.82")
	assert.Contains(t, output, "$0.0412")
	assert.Contains(t, output, "cancelled")
	assert.Contains(t, output, "2026-03-02 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
