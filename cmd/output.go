package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Output formats for run records.
const (
	formatJSON     = "json"
	formatYAML     = "yaml"
	formatMarkdown = "markdown"
)

func validFormat(f string) error {
	switch strings.ToLower(f) {
	case formatJSON, formatYAML, formatMarkdown:
		return nil
	}
	return eris.Errorf("unsupported format %q (json, yaml, markdown)", f)
}

// writeRecord renders a run record. Markdown prints only the dossier.
func writeRecord(w io.Writer, rec *model.RunRecord, format string) error {
	switch strings.ToLower(format) {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case formatMarkdown:
		if rec.Dossier == nil {
			return eris.Errorf("run %s has no dossier", rec.ID)
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(rec.Dossier.Markdown, "\n"))
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
}
