package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/cost"
	"github.com/sells-group/dossier-cli/pkg/jina"
)

// SearchHit is one web search result used as evidence.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Searcher runs web searches for evidence. Failures are soft: callers get
// an empty slice rather than an error.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []SearchHit
}

// SiteSearcher is a Searcher that can restrict results to one domain.
type SiteSearcher interface {
	Searcher
	SearchSite(ctx context.Context, domain, query string, limit int) []SearchHit
}

// PageReader fetches a page as markdown. Failures are soft.
type PageReader interface {
	ReadPage(ctx context.Context, url string) (title, content string)
}

// JinaEvidence implements Searcher and PageReader over Jina.
type JinaEvidence struct {
	client   jina.Client
	ledger   func(ctx context.Context) *cost.Ledger
	maxChars int
}

// NewJinaEvidence wraps a Jina client.
func NewJinaEvidence(client jina.Client) *JinaEvidence {
	return &JinaEvidence{client: client, ledger: ledgerFrom, maxChars: 12000}
}

// Search implements Searcher.
func (j *JinaEvidence) Search(ctx context.Context, query string, limit int) []SearchHit {
	return j.search(ctx, query, limit, "")
}

// SearchSite implements SiteSearcher.
func (j *JinaEvidence) SearchSite(ctx context.Context, domain, query string, limit int) []SearchHit {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil
	}
	return j.search(ctx, query, limit, domain)
}

func (j *JinaEvidence) search(ctx context.Context, query string, limit int, site string) []SearchHit {
	if j == nil || j.client == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	opts := []jina.SearchOption{jina.WithoutContent()}
	if limit > 0 {
		opts = append(opts, jina.WithCount(limit))
	}
	if site != "" {
		opts = append(opts, jina.WithSiteFilter(site))
	}

	start := time.Now()
	resp, err := j.client.Search(ctx, query, opts...)
	if err != nil {
		zap.L().Debug("pipeline: search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	if l := j.ledger(ctx); l != nil {
		l.Record("search", cost.ProviderJina, "", resp.Meta.Usage.Tokens, 0)
	}

	hits := make([]SearchHit, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Snippet(), Date: r.Date})
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	zap.L().Debug("pipeline: search complete",
		zap.String("query", query),
		zap.String("site", site),
		zap.Int("hits", len(hits)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return hits
}

// ReadPage implements PageReader.
func (j *JinaEvidence) ReadPage(ctx context.Context, url string) (string, string) {
	if j == nil || j.client == nil || url == "" {
		return "", ""
	}
	resp, err := j.client.Read(ctx, url)
	if err != nil {
		zap.L().Debug("pipeline: read page failed", zap.String("url", url), zap.Error(err))
		return "", ""
	}
	if l := j.ledger(ctx); l != nil {
		l.Record("read", cost.ProviderJina, "", resp.Data.Usage.Tokens, 0)
	}
	content := resp.Data.Content
	if len(content) > j.maxChars {
		content = content[:j.maxChars]
	}
	return resp.Data.Title, content
}

type ledgerKey struct{}

// withLedger attaches the run's cost ledger to ctx so shared collaborators
// can attribute usage to the right run.
func withLedger(ctx context.Context, l *cost.Ledger) context.Context {
	return context.WithValue(ctx, ledgerKey{}, l)
}

func ledgerFrom(ctx context.Context) *cost.Ledger {
	l, _ := ctx.Value(ledgerKey{}).(*cost.Ledger)
	return l
}
