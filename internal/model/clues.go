package model

import (
	"strings"
)

// CompanyClues is the raw identity bundle for one company as supplied by a
// roster. It is built once per run and never mutated afterwards.
type CompanyClues struct {
	Callsign   string   `json:"callsign" yaml:"callsign"`
	DBA        string   `json:"dba" yaml:"dba"`
	Owners     []string `json:"owners,omitempty" yaml:"owners,omitempty"`
	Domain     string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Website    string   `json:"website,omitempty" yaml:"website,omitempty"`
	SocialURL  string   `json:"social_url,omitempty" yaml:"social_url,omitempty"`
	AliasNames []string `json:"alias_names,omitempty" yaml:"alias_names,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	NotionPage string   `json:"notion_page_id,omitempty" yaml:"notion_page_id,omitempty"`

	// TwitterHandle is stored without the leading "@".
	TwitterHandle string `json:"twitter_handle,omitempty" yaml:"twitter_handle,omitempty"`
	CrunchbaseURL string `json:"crunchbase_url,omitempty" yaml:"crunchbase_url,omitempty"`
}

// NewCompanyClues normalizes raw roster values into a CompanyClues. Names are
// trimmed and deduplicated (case-insensitive); the domain is lowercased and
// stripped of scheme, path and a leading "www.".
func NewCompanyClues(callsign, dba string, owners []string, domain, socialURL string) CompanyClues {
	return CompanyClues{
		Callsign:  strings.TrimSpace(callsign),
		DBA:       strings.TrimSpace(dba),
		Owners:    dedupeNames(owners),
		Domain:    NormalizeDomain(domain),
		SocialURL: strings.TrimSpace(socialURL),
	}
}

// HasDomain reports whether the roster supplied a domain.
func (c CompanyClues) HasDomain() bool {
	return c.Domain != ""
}

// SetSocial records the X/Twitter handle and Crunchbase page for the company.
// The handle may be given as "@name", "name" or a profile URL.
func (c *CompanyClues) SetSocial(twitter, crunchbase string) {
	c.TwitterHandle = NormalizeTwitterHandle(twitter)
	c.CrunchbaseURL = strings.TrimSpace(crunchbase)
	if c.CrunchbaseURL != "" && !strings.Contains(c.CrunchbaseURL, "://") {
		c.CrunchbaseURL = "https://" + c.CrunchbaseURL
	}
}

// TwitterURL returns the profile URL for the handle, or "".
func (c CompanyClues) TwitterURL() string {
	if c.TwitterHandle == "" {
		return ""
	}
	return "https://x.com/" + c.TwitterHandle
}

// SocialProfiles returns every social profile URL the roster supplied.
func (c CompanyClues) SocialProfiles() []string {
	var out []string
	for _, u := range []string{c.SocialURL, c.TwitterURL(), c.CrunchbaseURL} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// DisplayName returns the best available human name for the company.
func (c CompanyClues) DisplayName() string {
	if c.DBA != "" {
		return c.DBA
	}
	if len(c.AliasNames) > 0 {
		return c.AliasNames[0]
	}
	return c.Callsign
}

// Names returns the DBA followed by any alias names, deduplicated.
func (c CompanyClues) Names() []string {
	all := make([]string, 0, 1+len(c.AliasNames))
	all = append(all, c.DBA)
	all = append(all, c.AliasNames...)
	return dedupeNames(all)
}

// Clone returns a deep copy so callers can hand clues to concurrent stages
// without sharing slice backing arrays.
func (c CompanyClues) Clone() CompanyClues {
	out := c
	out.Owners = append([]string(nil), c.Owners...)
	out.AliasNames = append([]string(nil), c.AliasNames...)
	out.Tags = append([]string(nil), c.Tags...)
	return out
}

// NormalizeDomain reduces a URL or host to a bare lowercase host.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return ""
	}
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.Trim(d, ".")
}

// NormalizeTwitterHandle reduces "@name", "name" or an x.com/twitter.com
// profile URL to the bare handle.
func NormalizeTwitterHandle(raw string) string {
	h := strings.TrimSpace(raw)
	l := strings.ToLower(h)
	for _, host := range []string{"twitter.com/", "x.com/"} {
		if i := strings.Index(l, host); i >= 0 && (i == 0 || l[i-1] == '.' || l[i-1] == '/') {
			h = h[i+len(host):]
			break
		}
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

func dedupeNames(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, n := range in {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
