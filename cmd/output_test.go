package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dossier-cli/internal/model"
)

func outputRecord() *model.RunRecord {
	return &model.RunRecord{
		ID:       "run-1",
		Callsign: "AALO",
		State:    model.RunDone,
		Strategy: "tiered",
		Funding:  model.Skipped[model.FundingIntelligence]("identity confidence below threshold"),
		Dossier: &model.Dossier{
			Callsign: "AALO",
			Markdown: "## Company Identity\n\nAalo Atomics.\n\n",
		},
	}
}

func TestValidFormat(t *testing.T) {
	assert.NoError(t, validFormat("json"))
	assert.NoError(t, validFormat("YAML"))
	assert.NoError(t, validFormat("markdown"))
	assert.Error(t, validFormat("xml"))
}

func TestWriteRecord_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRecord(&buf, outputRecord(), formatJSON))

	var got model.RunRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "AALO", got.Callsign)
	assert.Equal(t, model.OutcomeSkipped, got.Funding.State)
}

func TestWriteRecord_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRecord(&buf, outputRecord(), formatYAML))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "AALO", got["callsign"])
	assert.Equal(t, "done", got["state"])
	assert.Contains(t, buf.String(), "  state: skipped")
}

func TestWriteRecord_Markdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRecord(&buf, outputRecord(), formatMarkdown))
	assert.Equal(t, "## Company Identity\n\nAalo Atomics.\n", buf.String())

	rec := outputRecord()
	rec.Dossier = nil
	assert.Error(t, writeRecord(&buf, rec, formatMarkdown))
}
