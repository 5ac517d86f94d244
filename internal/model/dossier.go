package model

import "time"

// Fixed dossier section titles, in render order.
const (
	SectionIdentity    = "Company Identity"
	SectionOverview    = "Company Overview"
	SectionFunding     = "Funding"
	SectionActivity    = "Recent Activity"
	SectionQuality     = "Intelligence Quality Note"
	SectionImprovement = "What Would Improve Intelligence"
)

// SectionOrder lists every dossier section in the order it is rendered.
var SectionOrder = []string{
	SectionIdentity,
	SectionOverview,
	SectionFunding,
	SectionActivity,
	SectionQuality,
	SectionImprovement,
}

// DossierSection is one rendered section.
type DossierSection struct {
	Title      string  `json:"title" yaml:"title"`
	Body       string  `json:"body" yaml:"body"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Absent     bool    `json:"absent,omitempty" yaml:"absent,omitempty"`
}

// Dossier is the synthesized research document for one company.
type Dossier struct {
	Callsign            string           `json:"callsign" yaml:"callsign"`
	Markdown            string           `json:"markdown" yaml:"markdown"`
	Sections            []DossierSection `json:"sections" yaml:"sections"`
	ConfidenceNote      string           `json:"confidence_note" yaml:"confidence_note"`
	Improvements        []string         `json:"improvements" yaml:"improvements"`
	Gaps                []string         `json:"gaps,omitempty" yaml:"gaps,omitempty"`
	AggregateConfidence float64          `json:"aggregate_confidence" yaml:"aggregate_confidence"`
	Strategy            string           `json:"strategy" yaml:"strategy"`
	GeneratedAt         time.Time        `json:"generated_at" yaml:"generated_at"`
}

// Section returns the named section, if present.
func (d *Dossier) Section(title string) (DossierSection, bool) {
	if d == nil {
		return DossierSection{}, false
	}
	for _, s := range d.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return DossierSection{}, false
}

// SectionTitles returns the titles of the dossier's sections in order.
func (d *Dossier) SectionTitles() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		out[i] = s.Title
	}
	return out
}

// NewsItem is a recent press or blog mention.
type NewsItem struct {
	Title       string     `json:"title" yaml:"title"`
	URL         string     `json:"url" yaml:"url"`
	Source      string     `json:"source,omitempty" yaml:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	Snippet     string     `json:"snippet,omitempty" yaml:"snippet,omitempty"`
}

// PersonBackground holds background snippets for one owner or founder.
type PersonBackground struct {
	Name     string     `json:"name" yaml:"name"`
	Findings []NewsItem `json:"findings,omitempty" yaml:"findings,omitempty"`
}

// NewsBundle is what the news/background collector returns.
type NewsBundle struct {
	Items  []NewsItem         `json:"items,omitempty" yaml:"items,omitempty"`
	People []PersonBackground `json:"people,omitempty" yaml:"people,omitempty"`
}

// Empty reports whether the bundle carries nothing.
func (b NewsBundle) Empty() bool {
	if len(b.Items) > 0 {
		return false
	}
	for _, p := range b.People {
		if len(p.Findings) > 0 {
			return false
		}
	}
	return true
}
