package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dossier-cli/internal/model"
)

// News collection limits.
const (
	maxNewsCompanyQueries = 3
	maxNewsOwners         = 3
	maxNewsItems          = 8
	maxPersonFindings     = 5
	newsResultsPerQuery   = 5
)

// NewsQuery asks for recent news about a company and its people.
type NewsQuery struct {
	Domain       string
	Name         string
	Owners       []string
	LookbackDays int
}

// NewsCollector gathers recent news items and people background.
type NewsCollector interface {
	Collect(ctx context.Context, q NewsQuery) (model.NewsBundle, error)
}

// SearchNewsCollector implements NewsCollector over a Searcher.
type SearchNewsCollector struct {
	search Searcher
	now    func() time.Time
}

// NewSearchNewsCollector creates a news collector.
func NewSearchNewsCollector(search Searcher) *SearchNewsCollector {
	return &SearchNewsCollector{search: search, now: time.Now}
}

// Collect implements NewsCollector.
func (c *SearchNewsCollector) Collect(ctx context.Context, q NewsQuery) (model.NewsBundle, error) {
	var bundle model.NewsBundle
	if c.search == nil {
		return bundle, nil
	}

	company := companyNewsQueries(q)
	owners := q.Owners
	if len(owners) > maxNewsOwners {
		owners = owners[:maxNewsOwners]
	}

	companyHits := make([][]SearchHit, len(company))
	ownerHits := make([][]SearchHit, len(owners))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxNewsCompanyQueries)
	for i, query := range company {
		g.Go(func() error {
			companyHits[i] = c.search.Search(gctx, query, newsResultsPerQuery)
			return nil
		})
	}
	for i, owner := range owners {
		query := ownerNewsQuery(owner, q)
		if query == "" {
			continue
		}
		g.Go(func() error {
			ownerHits[i] = c.search.Search(gctx, query, newsResultsPerQuery)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return model.NewsBundle{}, err
	}

	cutoff := c.now().AddDate(0, 0, -lookbackDays(q.LookbackDays))
	seen := map[string]bool{}
	for _, hits := range companyHits {
		for _, item := range newsItems(hits, cutoff) {
			if len(bundle.Items) >= maxNewsItems {
				break
			}
			key := newsKey(item.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			bundle.Items = append(bundle.Items, item)
		}
	}
	for i, owner := range owners {
		owner = strings.TrimSpace(owner)
		if owner == "" {
			continue
		}
		person := model.PersonBackground{Name: owner}
		personSeen := map[string]bool{}
		for _, item := range newsItems(ownerHits[i], cutoff) {
			key := newsKey(item.URL)
			if personSeen[key] {
				continue
			}
			personSeen[key] = true
			person.Findings = append(person.Findings, item)
			if len(person.Findings) >= maxPersonFindings {
				break
			}
		}
		bundle.People = append(bundle.People, person)
	}

	zap.L().Debug("pipeline: news collected",
		zap.String("name", q.Name),
		zap.Int("items", len(bundle.Items)),
		zap.Int("people", len(bundle.People)),
	)
	return bundle, nil
}

func lookbackDays(d int) int {
	if d <= 0 {
		return DefaultNewsLookbackDays
	}
	return d
}

func companyNewsQueries(q NewsQuery) []string {
	var out []string
	if q.Domain != "" {
		out = append(out, fmt.Sprintf("site:%s (launch OR announce OR funding OR partnership)", q.Domain))
	}
	if q.Name != "" {
		out = append(out,
			fmt.Sprintf("%q (launch OR product OR partnership OR funding OR raises)", q.Name),
			fmt.Sprintf("%q news", q.Name),
		)
	}
	if len(out) > maxNewsCompanyQueries {
		out = out[:maxNewsCompanyQueries]
	}
	return out
}

func ownerNewsQuery(owner string, q NewsQuery) string {
	owner = strings.TrimSpace(owner)
	if owner == "" || (q.Name == "" && q.Domain == "") {
		return ""
	}
	var scope string
	switch {
	case q.Name != "" && q.Domain != "":
		scope = fmt.Sprintf("(%q OR site:%s)", q.Name, q.Domain)
	case q.Name != "":
		scope = fmt.Sprintf("%q", q.Name)
	default:
		scope = "site:" + q.Domain
	}
	return fmt.Sprintf("%q %s (CEO OR founder OR CTO OR CFO OR raises OR interview)", owner, scope)
}

// newsItems converts hits, dropping dated items older than cutoff. Undated
// items are kept.
func newsItems(hits []SearchHit, cutoff time.Time) []model.NewsItem {
	out := make([]model.NewsItem, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		item := model.NewsItem{
			Title:   strings.TrimSpace(h.Title),
			URL:     h.URL,
			Source:  newsSource(h.URL),
			Snippet: h.Snippet,
		}
		if t, ok := parseNewsDate(h.Date); ok {
			if t.Before(cutoff) {
				continue
			}
			item.PublishedAt = &t
		}
		out = append(out, item)
	}
	return out
}

func newsSource(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func newsKey(raw string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "/")
}

var newsDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
}

func parseNewsDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range newsDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
