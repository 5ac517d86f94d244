package pipeline

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/dossier-cli/internal/model"
)

var (
	amountRE        = regexp.MustCompile(`(?i)(?:^|[^\d$])(?:USD\s*)?\$\s*([0-9][\d,\.]*)\s*(billion|bn|million|mm|m|thousand|k)?\b`)
	unitAmountRE    = regexp.MustCompile(`(?i)\b([0-9][\d,\.]*)\s*(billion|million|bn|mm)\b`)
	bareAmountRE    = regexp.MustCompile(`(?i)^\s*(?:USD\s*)?\$?\s*([0-9][\d,\.]*)\s*(billion|bn|b|million|mm|m|thousand|k)?\s*$`)
	roundRE         = regexp.MustCompile(`(?i)\b(Pre-Seed|Seed|Angel|Series\s+[A-K](?:\s+extension)?|Bridge|Convertible\s+Note|SAFE|Venture\s+Round|Equity\s+Round)\b`)
	dateRE          = regexp.MustCompile(`\b((?:19|20)\d{2})[-/\.](\d{1,2})[-/\.](\d{1,2})\b`)
	ledByRE         = regexp.MustCompile(`(?i)\b(?:co-)?led by\s+([^.;\n]+)`)
	participationRE = regexp.MustCompile(`(?i)\b(?:with participation from|including)\s+([^.;\n]+)`)
	investorSplitRE = regexp.MustCompile(`,|\band\b`)
	trailingParenRE = regexp.MustCompile(`\(.*?\)$`)
	bootstrappedRE  = regexp.MustCompile(`(?i)\b(bootstrapped|self-funded|self funded|profitable without (?:outside|external) funding)\b`)
)

// FundingHint is what regular expressions could pull out of evidence text.
type FundingHint struct {
	RoundType    string     `json:"round_type,omitempty"`
	AmountUSD    *float64   `json:"amount_usd,omitempty"`
	AnnouncedOn  *time.Time `json:"announced_on,omitempty"`
	Investors    []string   `json:"investors,omitempty"`
	LeadInvestor string     `json:"lead_investor,omitempty"`
	Bootstrapped bool       `json:"bootstrapped,omitempty"`
	SourceURL    string     `json:"source_url,omitempty"`
}

// Empty reports whether nothing was extracted.
func (h FundingHint) Empty() bool {
	return h.RoundType == "" && h.AmountUSD == nil && h.AnnouncedOn == nil && len(h.Investors) == 0 && !h.Bootstrapped
}

// ExtractFundingHint scans free text for round type, amount, date and
// investors.
func ExtractFundingHint(text string) FundingHint {
	var h FundingHint
	if strings.TrimSpace(text) == "" {
		return h
	}
	if m := roundRE.FindStringSubmatch(text); m != nil {
		h.RoundType = normalizeRoundType(m[1])
	}
	if m := amountRE.FindStringSubmatch(text); m != nil {
		h.AmountUSD = toUSD(m[1], m[2])
	} else if m := unitAmountRE.FindStringSubmatch(text); m != nil {
		h.AmountUSD = toUSD(m[1], m[2])
	}
	if m := dateRE.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
			if t.Day() == d {
				h.AnnouncedOn = &t
			}
		}
	}

	var investors []string
	if m := ledByRE.FindStringSubmatch(text); m != nil {
		names := m[1]
		if loc := participationRE.FindStringIndex(names); loc != nil {
			names = names[:loc[0]]
		}
		lead := splitInvestors(names)
		if len(lead) > 0 {
			h.LeadInvestor = lead[0]
		}
		investors = append(investors, lead...)
	}
	if m := participationRE.FindStringSubmatch(text); m != nil {
		investors = append(investors, splitInvestors(m[1])...)
	}
	if len(investors) > 0 {
		investors = dedupeStrings(investors)
		sort.Strings(investors)
		h.Investors = investors
	}
	h.Bootstrapped = bootstrappedRE.MatchString(text)
	return h
}

func splitInvestors(s string) []string {
	var out []string
	for _, p := range investorSplitRE.Split(s, -1) {
		p = strings.TrimSpace(trailingParenRE.ReplaceAllString(strings.TrimSpace(p), ""))
		p = strings.Trim(p, " .")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MergeFundingHints combines hints, keeping the first non-empty value of
// each field.
func MergeFundingHints(hints ...FundingHint) FundingHint {
	var out FundingHint
	for _, h := range hints {
		if out.RoundType == "" {
			out.RoundType = h.RoundType
		}
		if out.AmountUSD == nil {
			out.AmountUSD = h.AmountUSD
		}
		if out.AnnouncedOn == nil {
			out.AnnouncedOn = h.AnnouncedOn
		}
		if out.LeadInvestor == "" {
			out.LeadInvestor = h.LeadInvestor
		}
		if len(out.Investors) == 0 {
			out.Investors = h.Investors
		}
		if out.SourceURL == "" && !h.Empty() {
			out.SourceURL = h.SourceURL
		}
		out.Bootstrapped = out.Bootstrapped || h.Bootstrapped
	}
	return out
}

// ParseAmount parses amounts such as "12.5M", "$2.3 billion" or "750k".
func ParseAmount(s string) *float64 {
	m := bareAmountRE.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return toUSD(m[1], m[2])
}

func toUSD(num, unit string) *float64 {
	n, err := strconv.ParseFloat(strings.TrimRight(strings.ReplaceAll(num, ",", ""), "."), 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) || n <= 0 {
		return nil
	}
	switch strings.ToLower(unit) {
	case "billion", "bn", "b":
		n *= 1_000_000_000
	case "million", "mm", "m":
		n *= 1_000_000
	case "thousand", "k":
		n *= 1_000
	}
	n = math.Round(n)
	return &n
}

// normalizeRoundType title-cases round names ("series a" -> "Series A").
func normalizeRoundType(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	for i, f := range fields {
		switch l := strings.ToLower(f); {
		case l == "safe":
			fields[i] = "SAFE"
		case len(l) == 1:
			fields[i] = strings.ToUpper(l)
		case strings.HasPrefix(l, "pre-"):
			fields[i] = "Pre-" + strings.ToUpper(l[4:5]) + l[5:]
		default:
			fields[i] = strings.ToUpper(l[:1]) + l[1:]
		}
	}
	return strings.Join(fields, " ")
}

// roundFromHint converts an extracted hint to a funding round.
func roundFromHint(h FundingHint) *model.FundingRound {
	if h.RoundType == "" && h.AmountUSD == nil {
		return nil
	}
	return &model.FundingRound{
		AmountUSD:    h.AmountUSD,
		RoundType:    h.RoundType,
		AnnouncedOn:  h.AnnouncedOn,
		Investors:    h.Investors,
		LeadInvestor: h.LeadInvestor,
		SourceURL:    h.SourceURL,
	}
}
