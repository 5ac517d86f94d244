package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/cost"
	"github.com/sells-group/dossier-cli/pkg/firecrawl"
)

// ReaderChain tries page readers in order and returns the first page that
// has real content. Anti-bot interstitials count as a miss.
type ReaderChain []PageReader

// ReadPage implements PageReader.
func (c ReaderChain) ReadPage(ctx context.Context, url string) (string, string) {
	for i, r := range c {
		if r == nil {
			continue
		}
		if ctx.Err() != nil {
			return "", ""
		}
		title, content := r.ReadPage(ctx, url)
		if strings.TrimSpace(content) == "" {
			continue
		}
		if reason := blockedPage(content); reason != "" {
			zap.L().Debug("pipeline: page blocked, trying next reader",
				zap.String("url", url),
				zap.Int("reader", i),
				zap.String("reason", reason),
			)
			continue
		}
		return title, content
	}
	return "", ""
}

// blockedPage names the kind of anti-bot page content looks like, or ""
// when it looks like the real site.
func blockedPage(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return "cloudflare"
	case strings.Contains(lower, "captcha"):
		return "captcha"
	case len(content) < 2000 && strings.Contains(lower, "enable javascript"):
		return "js_shell"
	}
	return ""
}

// FirecrawlReader implements PageReader over Firecrawl's scrape endpoint.
type FirecrawlReader struct {
	client   firecrawl.Client
	ledger   func(ctx context.Context) *cost.Ledger
	maxChars int
}

// NewFirecrawlReader wraps a Firecrawl client.
func NewFirecrawlReader(client firecrawl.Client) *FirecrawlReader {
	return &FirecrawlReader{client: client, ledger: ledgerFrom, maxChars: 12000}
}

// ReadPage implements PageReader.
func (f *FirecrawlReader) ReadPage(ctx context.Context, url string) (string, string) {
	if f == nil || f.client == nil || url == "" {
		return "", ""
	}
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             url,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
	})
	if err != nil {
		zap.L().Debug("pipeline: firecrawl scrape failed", zap.String("url", url), zap.Error(err))
		return "", ""
	}
	if l := f.ledger(ctx); l != nil {
		l.Record("read", cost.ProviderFirecrawl, "", 0, 0)
	}
	content := resp.Data.Markdown
	if len(content) > f.maxChars {
		content = content[:f.maxChars]
	}
	return resp.Data.Metadata.Title, content
}
