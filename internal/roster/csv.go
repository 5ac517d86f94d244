// Package roster loads the companies to research, either from a roster CSV
// export or from the Notion companies database.
package roster

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Row is one roster CSV line. Columns are matched by header name; unknown
// columns are ignored.
type Row struct {
	Callsign    string `csv:"callsign"`
	DBA         string `csv:"dba,omitempty"`
	Owners      string `csv:"owners,omitempty"`
	Domain      string `csv:"domain,omitempty"`
	Website     string `csv:"website,omitempty"`
	LinkedInURL string `csv:"linkedin_url,omitempty"`
	AKANames    string `csv:"aka_names,omitempty"`
	Tags        string `csv:"tags,omitempty"`
	Twitter     string `csv:"twitter_handle,omitempty"`
	Crunchbase  string `csv:"crunchbase_url,omitempty"`
}

// Clues converts the row into pipeline input.
func (r Row) Clues() model.CompanyClues {
	c := model.NewCompanyClues(r.Callsign, r.DBA, splitList(r.Owners), r.Domain, r.LinkedInURL)
	c.Website = strings.TrimSpace(r.Website)
	c.AliasNames = splitList(r.AKANames)
	c.Tags = splitList(r.Tags)
	c.SetSocial(r.Twitter, r.Crunchbase)
	if c.Domain == "" && c.Website != "" {
		c.Domain = model.NormalizeDomain(c.Website)
	}
	return c
}

// LoadCSV reads a roster file.
func LoadCSV(path string) ([]model.CompanyClues, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(f)
}

// ReadCSV decodes roster rows. Header names are matched case-insensitively.
// Rows without a callsign are skipped and duplicate callsigns keep the first
// occurrence.
func ReadCSV(r io.Reader) ([]model.CompanyClues, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "roster: read header")
	}
	for i, h := range header {
		header[i] = normalizeHeader(h)
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, eris.Wrap(err, "roster: create decoder")
	}

	seen := make(map[string]bool)
	var out []model.CompanyClues
	for line := 2; ; line++ {
		var row Row
		err := dec.Decode(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "roster: decode line %d", line)
		}
		c := row.Clues()
		if c.Callsign == "" {
			zap.L().Debug("roster: skipping row without callsign", zap.Int("line", line))
			continue
		}
		key := strings.ToLower(c.Callsign)
		if seen[key] {
			zap.L().Debug("roster: duplicate callsign", zap.String("callsign", c.Callsign), zap.Int("line", line))
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.ReplaceAll(h, " ", "_")
	switch h {
	case "company", "company_name", "name":
		return "dba"
	case "beneficial_owners", "founders":
		return "owners"
	case "domain_root":
		return "domain"
	case "linkedin":
		return "linkedin_url"
	case "twitter", "x_handle", "twitter_url":
		return "twitter_handle"
	case "crunchbase":
		return "crunchbase_url"
	}
	return h
}

// splitList splits a ";" or "," separated cell.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
