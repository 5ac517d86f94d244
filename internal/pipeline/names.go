package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/dossier-cli/internal/model"
)

// corporate suffixes ignored when comparing names.
var nameStopWords = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "co": true, "corp": true, "corporation": true,
	"company": true, "the": true, "labs": true, "lab": true, "hq": true, "technologies": true,
	"technology": true, "tech": true, "group": true, "holdings": true, "gmbh": true, "plc": true,
	"ai": true, "io": true, "app": true, "and": true,
}

// foldName lowercases, strips accents and replaces punctuation with spaces.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
}

// nameTokens returns the significant tokens of a company name.
func nameTokens(name string) []string {
	var out []string
	for _, tok := range strings.Fields(foldName(name)) {
		if nameStopWords[tok] || len(tok) < 2 {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// nameMatches reports whether text (a page title, host or snippet) plausibly
// refers to the company name: either every significant token appears, or
// the tokens joined together appear (so "Aalo Atomics" matches
// "aaloatomics.ai").
func nameMatches(name, text string) bool {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return false
	}
	hay := foldName(text)
	compact := strings.ReplaceAll(hay, " ", "")
	if strings.Contains(compact, strings.Join(tokens, "")) {
		return true
	}
	hayTokens := make(map[string]bool)
	for _, t := range strings.Fields(hay) {
		hayTokens[t] = true
	}
	for _, t := range tokens {
		if !hayTokens[t] {
			return false
		}
	}
	return true
}

// anyNameMatches checks every name in names against text.
func anyNameMatches(names []string, text string) bool {
	for _, n := range names {
		if nameMatches(n, text) {
			return true
		}
	}
	return false
}

// RegistrableDomain reduces a host or URL to its registrable domain
// ("blog.aalo.co.uk" -> "aalo.co.uk"). It returns "" for hosts without a
// known public suffix.
func RegistrableDomain(raw string) string {
	host := model.NormalizeDomain(raw)
	if host == "" {
		return ""
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return root
}

// socialHosts are registrable domains that never identify the company itself.
var socialHosts = map[string]bool{
	"linkedin.com": true, "twitter.com": true, "x.com": true, "facebook.com": true,
	"instagram.com": true, "crunchbase.com": true, "angel.co": true, "wellfound.com": true,
	"pitchbook.com": true, "youtube.com": true, "github.com": true, "medium.com": true,
	"techcrunch.com": true, "bloomberg.com": true, "wikipedia.org": true, "google.com": true,
	"zoominfo.com": true, "apollo.io": true, "tracxn.com": true, "cbinsights.com": true,
}

func isSocialHost(domain string) bool {
	return socialHosts[RegistrableDomain(domain)]
}

// isFounderProfile reports whether u is a personal LinkedIn profile.
func isFounderProfile(u string) bool {
	l := strings.ToLower(u)
	return strings.Contains(l, "linkedin.com/in/")
}

// isCompanyProfile reports whether u is a LinkedIn company page.
func isCompanyProfile(u string) bool {
	return strings.Contains(strings.ToLower(u), "linkedin.com/company/")
}

// handleMatches reports whether a social handle names the domain's first
// label, as "aaloatomics" does for "aaloatomics.ai".
func handleMatches(handle, root string) bool {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" || root == "" {
		return false
	}
	label, _, _ := strings.Cut(root, ".")
	return strings.ReplaceAll(handle, "_", "") == strings.ReplaceAll(label, "-", "")
}
