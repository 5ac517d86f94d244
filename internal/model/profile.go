package model

// Fact is one derived statement. A fact without a Source is Inferred.
type Fact struct {
	Text     string `json:"text" yaml:"text"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Inferred bool   `json:"inferred,omitempty" yaml:"inferred,omitempty"`
}

// CompanyProfileIntel is the output of profile enrichment.
type CompanyProfileIntel struct {
	Products         []Fact   `json:"products,omitempty" yaml:"products,omitempty"`
	TargetCustomers  []Fact   `json:"target_customers,omitempty" yaml:"target_customers,omitempty"`
	ValueProposition *Fact    `json:"value_proposition,omitempty" yaml:"value_proposition,omitempty"`
	GTMMotion        *Fact    `json:"gtm_motion,omitempty" yaml:"gtm_motion,omitempty"`
	BusinessModel    *Fact    `json:"business_model,omitempty" yaml:"business_model,omitempty"`
	HeadcountRange   *Fact    `json:"headcount_range,omitempty" yaml:"headcount_range,omitempty"`
	Headquarters     *Fact    `json:"headquarters,omitempty" yaml:"headquarters,omitempty"`
	Differentiation  []Fact   `json:"differentiation,omitempty" yaml:"differentiation,omitempty"`
	NotableCustomers []Fact   `json:"notable_customers,omitempty" yaml:"notable_customers,omitempty"`
	OpenQuestions    []string `json:"open_questions,omitempty" yaml:"open_questions,omitempty"`
	Confidence       float64  `json:"confidence" yaml:"confidence"`
	Reasoning        string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Sources          []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// AllFacts returns every fact in the profile, lists and single-valued
// fields alike.
func (p CompanyProfileIntel) AllFacts() []Fact {
	var out []Fact
	out = append(out, p.Products...)
	out = append(out, p.TargetCustomers...)
	for _, f := range []*Fact{p.ValueProposition, p.GTMMotion, p.BusinessModel, p.HeadcountRange, p.Headquarters} {
		if f != nil && f.Text != "" {
			out = append(out, *f)
		}
	}
	out = append(out, p.Differentiation...)
	out = append(out, p.NotableCustomers...)
	return out
}

// SourcedFactCount counts facts carrying a citation.
func (p CompanyProfileIntel) SourcedFactCount() int {
	n := 0
	for _, f := range p.AllFacts() {
		if !f.Inferred && f.Source != "" {
			n++
		}
	}
	return n
}
