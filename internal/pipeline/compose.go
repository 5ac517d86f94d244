package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Aggregate confidence weights. Skipped or failed stages contribute zero.
const (
	identityWeight = 0.4
	fundingWeight  = 0.3
	profileWeight  = 0.3
)

// Sentence budget thresholds for narrative depth.
const (
	fullDepthConfidence  = 0.6
	briefDepthConfidence = 0.3
	briefSentences       = 3
)

const (
	minImprovements = 2
	maxImprovements = 5
)

// SynthesisInput is everything known about a company at synthesis time.
// Identity may be nil and any outcome may be skipped or failed.
type SynthesisInput struct {
	Clues    model.CompanyClues
	Identity *model.CompanyIdentity
	Funding  model.Outcome[model.FundingIntelligence]
	Profile  model.Outcome[model.CompanyProfileIntel]
	News     model.Outcome[model.NewsBundle]
}

// Narrative is per-section prose written by a reasoner. Any field may be
// empty.
type Narrative struct {
	Identity       string   `json:"identity"`
	Overview       string   `json:"overview"`
	Funding        string   `json:"funding"`
	RecentActivity string   `json:"recent_activity"`
	QualityNote    string   `json:"quality_note"`
	Improvements   []string `json:"improvements,omitempty"`
}

// ComposeDossier renders the six fixed sections from the input and an
// optional narrative. It never fails: sections without supporting input get
// an explicit absence statement and ignore the narrative.
func ComposeDossier(in SynthesisInput, n *Narrative) *model.Dossier {
	if n == nil {
		n = &Narrative{}
	}
	idConf, fundConf, profConf := inputConfidences(in)
	aggregate := round2(identityWeight*idConf + fundingWeight*fundConf + profileWeight*profConf)
	gaps := namedGaps(in)

	d := &model.Dossier{
		Callsign:            in.Clues.Callsign,
		AggregateConfidence: aggregate,
		Gaps:                gaps,
	}

	d.Sections = append(d.Sections, identitySection(in, n, idConf))
	d.Sections = append(d.Sections, overviewSection(in, n, profConf))
	d.Sections = append(d.Sections, fundingSection(in, n, fundConf))
	d.Sections = append(d.Sections, activitySection(in, n, idConf))

	quality := qualitySection(in, n, aggregate, idConf, fundConf, profConf, gaps)
	d.ConfidenceNote = quality.Body
	d.Sections = append(d.Sections, quality)

	d.Improvements = improvementActions(gaps, n.Improvements)
	d.Sections = append(d.Sections, model.DossierSection{
		Title:      model.SectionImprovement,
		Body:       bulletList(d.Improvements),
		Confidence: aggregate,
	})

	d.Markdown = renderMarkdown(in.Clues.DisplayName(), d.Sections)
	return d
}

func inputConfidences(in SynthesisInput) (id, funding, profile float64) {
	if in.Identity != nil {
		id = in.Identity.Confidence
	}
	if f := in.Funding.Get(); f != nil {
		funding = f.Confidence
	}
	if p := in.Profile.Get(); p != nil {
		profile = p.Confidence
	}
	return clamp(id, 0, 1), clamp(funding, 0, 1), clamp(profile, 0, 1)
}

func identitySection(in SynthesisInput, n *Narrative, conf float64) model.DossierSection {
	s := model.DossierSection{Title: model.SectionIdentity, Confidence: conf}
	id := in.Identity
	if id == nil {
		lines := []string{"No identity information available."}
		if in.Clues.Domain != "" {
			lines = append(lines, fmt.Sprintf("The roster lists %s, which could not be verified.", in.Clues.Domain))
		}
		s.Body = strings.Join(lines, " ")
		s.Absent = true
		return s
	}

	facts := []string{
		field("Name", in.Clues.DisplayName()),
		field("Status", string(id.Status)),
		field("Confidence", fmt.Sprintf("%.2f", id.Confidence)),
	}
	if id.HasDomain() {
		facts = append(facts, field("Domain", id.CurrentDomain))
		facts = append(facts, field("Website", id.Website))
	} else {
		facts = append(facts, field("Domain", "No verified domain available"))
	}
	if id.RedirectFrom != "" {
		facts = append(facts, field("Redirected from", id.RedirectFrom))
	}
	if id.CompanyLinkedIn != "" {
		facts = append(facts, field("Company profile", id.CompanyLinkedIn))
	}
	if len(id.FounderProfiles) > 0 {
		facts = append(facts, field("Founder profiles", strings.Join(id.FounderProfiles, ", ")))
	}

	prose := firstNonEmpty(n.Identity, id.Reasoning)
	if id.Status == model.IdentityStealth && prose == "" {
		prose = "Company is in stealth; no public website was found."
	}
	if id.Status == model.IdentityUnknown {
		s.Absent = true
		if prose == "" {
			prose = "Unable to confirm the company's current identity."
		}
	}
	s.Body = joinBlocks(bulletList(compact(facts)), budgetSentences(prose, conf))
	return s
}

func overviewSection(in SynthesisInput, n *Narrative, conf float64) model.DossierSection {
	s := model.DossierSection{Title: model.SectionOverview, Confidence: conf}
	team := ""
	if len(in.Clues.Owners) > 0 {
		team = field("Team", strings.Join(in.Clues.Owners, ", "))
	}

	p := in.Profile.Get()
	if p == nil || profileEmpty(*p) {
		s.Absent = true
		s.Confidence = 0
		statement := "Product details not publicly available." + outcomeNote("Profile research", in.Profile.State, in.Profile.Reason)
		s.Body = joinBlocks(statement, bulletList(compact([]string{team})))
		return s
	}

	facts := []string{
		field("Products", factList(p.Products)),
		field("Target customers", factList(p.TargetCustomers)),
		field("Value proposition", factValue(p.ValueProposition)),
		field("Business model", factValue(p.BusinessModel)),
		field("Go-to-market", factValue(p.GTMMotion)),
		field("Differentiation", factList(p.Differentiation)),
		field("Notable customers", factList(p.NotableCustomers)),
		field("Headcount", factValue(p.HeadcountRange)),
		field("Headquarters", factValue(p.Headquarters)),
		team,
	}
	if factValue(p.BusinessModel) == "" {
		facts = append(facts, field("Business model", "Unable to confirm business model"))
	}
	s.Body = joinBlocks(bulletList(compact(facts)), budgetSentences(n.Overview, conf))
	return s
}

func fundingSection(in SynthesisInput, n *Narrative, conf float64) model.DossierSection {
	s := model.DossierSection{Title: model.SectionFunding, Confidence: conf}
	f := in.Funding.Get()
	if f == nil {
		s.Absent = true
		s.Body = "No public funding information available." + outcomeNote("Funding research", in.Funding.State, in.Funding.Reason)
		return s
	}
	if f.Finding == model.FundingNotFound {
		s.Absent = true
		s.Body = joinBlocks("No public funding information available.", budgetSentences(n.Funding, conf))
		return s
	}

	facts := []string{field("Stage", f.Stage)}
	if r := f.LatestRound; r != nil {
		facts = append(facts,
			field("Latest round", r.RoundType),
			field("Amount", formatUSD(r.AmountUSD)),
			field("Announced", formatDate(r)),
			field("Lead investor", r.LeadInvestor),
			field("Investors", strings.Join(r.Investors, ", ")),
		)
	}
	facts = append(facts, field("Total funding", formatUSD(f.TotalFundingUSD)))
	if f.Finding == model.FundingBootstrapped {
		facts = append(facts, "Evidence suggests the company is self-funded.")
	}
	s.Body = joinBlocks(bulletList(compact(facts)), budgetSentences(firstNonEmpty(n.Funding, f.Reasoning), conf))
	return s
}

func activitySection(in SynthesisInput, n *Narrative, idConf float64) model.DossierSection {
	s := model.DossierSection{Title: model.SectionActivity}
	b := in.News.Get()
	if b == nil || b.Empty() {
		s.Absent = true
		statement := "No recent public activity found."
		if in.Identity != nil && in.Identity.Status == model.IdentityStealth {
			statement += " Company in stealth mode, minimal public activity expected."
		} else if b == nil {
			statement += outcomeNote("News collection", in.News.State, in.News.Reason)
		}
		s.Body = statement
		return s
	}

	s.Confidence = idConf
	var lines []string
	for _, item := range b.Items {
		lines = append(lines, newsLine(item))
	}
	for _, p := range b.People {
		if len(p.Findings) == 0 {
			continue
		}
		titles := make([]string, 0, len(p.Findings))
		for _, f := range p.Findings {
			titles = append(titles, newsLine(f))
		}
		lines = append(lines, fmt.Sprintf("**%s:** %s", p.Name, strings.Join(titles, "; ")))
	}
	s.Body = joinBlocks(bulletList(lines), budgetSentences(n.RecentActivity, idConf))
	return s
}

func qualitySection(in SynthesisInput, n *Narrative, aggregate, idConf, fundConf, profConf float64, gaps []string) model.DossierSection {
	summary := fmt.Sprintf("Aggregate confidence %.2f (identity %.2f, funding %.2f, profile %.2f).",
		aggregate, idConf, fundConf, profConf)
	if len(gaps) > 0 {
		summary += " Gaps: " + strings.Join(gaps, "; ") + "."
	} else {
		summary += " No major gaps identified."
	}
	return model.DossierSection{
		Title:      model.SectionQuality,
		Body:       joinBlocks(summary, budgetSentences(n.QualityNote, aggregate)),
		Confidence: aggregate,
	}
}

// namedGaps lists what the research could not establish.
func namedGaps(in SynthesisInput) []string {
	var gaps []string
	id := in.Identity
	switch {
	case id == nil || id.Status == model.IdentityUnknown:
		gaps = append(gaps, "company identity unresolved")
	case id.Status == model.IdentityStealth:
		gaps = append(gaps, "company in stealth with no public website")
	case !id.HasDomain():
		gaps = append(gaps, "no verified domain")
	case id.Status == model.IdentityInactive:
		gaps = append(gaps, "company website appears inactive")
	}
	if id != nil && id.Confidence < fullDepthConfidence && id.Status != model.IdentityUnknown {
		gaps = append(gaps, "identity confidence is low")
	}

	switch f := in.Funding.Get(); {
	case f == nil && in.Funding.State == model.OutcomeSkipped:
		gaps = append(gaps, "funding research skipped")
	case f == nil:
		gaps = append(gaps, "funding research failed")
	case f.Finding == model.FundingNotFound:
		gaps = append(gaps, "no public funding information")
	}

	switch p := in.Profile.Get(); {
	case p == nil && in.Profile.State == model.OutcomeSkipped:
		gaps = append(gaps, "profile research skipped")
	case p == nil:
		gaps = append(gaps, "profile research failed")
	case profileEmpty(*p):
		gaps = append(gaps, "product details not found")
	case p.SourcedFactCount() == 0:
		gaps = append(gaps, "profile facts lack citations")
	}

	if b := in.News.Get(); b == nil || b.Empty() {
		gaps = append(gaps, "no recent public activity")
	}
	return gaps
}

// gapActions maps a named gap to a concrete research action.
var gapActions = map[string]string{
	"company identity unresolved":               "Request an updated domain and company name from the relationship manager",
	"company in stealth with no public website": "Monitor founder LinkedIn profiles for a launch announcement",
	"no verified domain":                        "Confirm the company's current website with the founders",
	"company website appears inactive":          "Check whether the company was renamed, acquired or shut down",
	"identity confidence is low":                "Verify the company's identity against registry or founder records",
	"funding research skipped":                  "Resolve the company's identity, then re-run funding research",
	"funding research failed":                   "Re-run funding research",
	"no public funding information":             "Ask the founders about their funding history",
	"profile research skipped":                  "Resolve the company's identity, then re-run profile research",
	"profile research failed":                   "Re-run profile research",
	"product details not found":                 "Review the company website and pitch materials for product details",
	"profile facts lack citations":              "Find cited sources for the company's products and customers",
	"no recent public activity":                 "Check the company blog and press page monthly for updates",
}

var defaultActions = []string{
	"Check the company blog and press page monthly for updates",
	"Schedule a check-in with the founders to refresh this dossier",
}

// improvementActions merges rule-based actions for gaps with suggested
// ones, deduplicated, between two and five items.
func improvementActions(gaps, suggested []string) []string {
	var all []string
	for _, g := range gaps {
		if a, ok := gapActions[g]; ok {
			all = append(all, a)
		}
	}
	for _, s := range suggested {
		all = append(all, strings.TrimSpace(strings.TrimLeft(s, "-*0123456789. ")))
	}

	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		key := strings.ToLower(strings.TrimRight(s, ". "))
		if key == "" || seen[key] || len(out) >= maxImprovements {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, a := range all {
		add(a)
	}
	for _, a := range defaultActions {
		if len(out) >= minImprovements {
			break
		}
		add(a)
	}
	return out
}

// budgetSentences trims prose to the depth its confidence supports.
func budgetSentences(prose string, conf float64) string {
	prose = plainProse(prose)
	if prose == "" {
		return ""
	}
	switch {
	case conf >= fullDepthConfidence:
		return prose
	case conf >= briefDepthConfidence:
		return strings.Join(firstSentences(prose, briefSentences), " ")
	default:
		return strings.Join(firstSentences(prose, 1), " ")
	}
}

// plainProse drops headings so narrative text cannot add sections.
func plainProse(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, " ")
}

func firstSentences(s string, n int) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, strings.TrimSpace(string(runes[start:i+1])))
		start = i + 1
		if len(out) == n {
			return out
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" && len(out) < n {
		out = append(out, rest)
	}
	return out
}

func renderMarkdown(name string, sections []model.DossierSection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.Title, strings.TrimSpace(s.Body))
	}
	return b.String()
}

// MarkdownHeadings returns the level-two headings of a markdown document in
// order.
func MarkdownHeadings(md string) []string {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering && h.Level == 2 {
			out = append(out, string(nodeText(h, src)))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

func nodeText(n ast.Node, src []byte) []byte {
	var buf []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf = append(buf, t.Segment.Value(src)...)
			continue
		}
		buf = append(buf, nodeText(c, src)...)
	}
	return buf
}

// HasAllSections reports whether md carries every fixed section heading in
// order.
func HasAllSections(md string) bool {
	headings := MarkdownHeadings(md)
	if len(headings) < len(model.SectionOrder) {
		return false
	}
	i := 0
	for _, h := range headings {
		if i < len(model.SectionOrder) && h == model.SectionOrder[i] {
			i++
		}
	}
	return i == len(model.SectionOrder)
}

func profileEmpty(p model.CompanyProfileIntel) bool {
	return len(p.AllFacts()) == 0
}

func outcomeNote(what string, state model.OutcomeState, reason string) string {
	switch state {
	case model.OutcomeSkipped:
		if reason != "" {
			return fmt.Sprintf(" %s was skipped: %s.", what, reason)
		}
		return fmt.Sprintf(" %s was skipped.", what)
	case model.OutcomeFailed:
		return fmt.Sprintf(" %s could not be completed.", what)
	}
	return ""
}

// field renders a labelled value on one line.
func field(label, value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return ""
	}
	return fmt.Sprintf("**%s:** %s", label, value)
}

func factList(facts []model.Fact) string {
	parts := make([]string, 0, len(facts))
	for i := range facts {
		parts = append(parts, factValue(&facts[i]))
	}
	return strings.Join(parts, "; ")
}

func factValue(f *model.Fact) string {
	switch {
	case f == nil:
		return ""
	case f.Inferred:
		return f.Text + " (unconfirmed)"
	default:
		return f.Text
	}
}

func newsLine(item model.NewsItem) string {
	title := firstNonEmpty(item.Title, item.URL)
	line := fmt.Sprintf("[%s](%s)", title, item.URL)
	if item.Source != "" {
		line += " (" + item.Source
		if item.PublishedAt != nil {
			line += ", " + item.PublishedAt.Format("2006-01-02")
		}
		line += ")"
	}
	return line
}

func formatUSD(v *float64) string {
	if v == nil {
		return ""
	}
	switch x := *v; {
	case x >= 1e9:
		return fmt.Sprintf("$%.1fB", x/1e9)
	case x >= 1e6:
		return fmt.Sprintf("$%.1fM", x/1e6)
	case x >= 1e3:
		return fmt.Sprintf("$%.0fK", x/1e3)
	default:
		return fmt.Sprintf("$%.0f", x)
	}
}

func formatDate(r *model.FundingRound) string {
	if r.AnnouncedOn == nil {
		return ""
	}
	return r.AnnouncedOn.Format("2006-01-02")
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinBlocks(blocks ...string) string {
	var out []string
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return strings.Join(out, "\n\n")
}
