package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/dossier-cli/pkg/anthropic"
	"github.com/sells-group/dossier-cli/pkg/jina"
	"github.com/sells-group/dossier-cli/pkg/perplexity"
)

// Compile-time interface checks.
var (
	_ anthropic.Client  = (*StubAnthropicClient)(nil)
	_ jina.Client       = (*StubJinaClient)(nil)
	_ perplexity.Client = (*StubPerplexityClient)(nil)
	_ DomainProber      = (*StubProber)(nil)
)

var stubDomainRE = regexp.MustCompile(`"csv_domain": "([^"]*)"`)

// --- Perplexity Stub ---

// StubPerplexityClient implements perplexity.Client with canned structured
// answers chosen by the prompt being answered.
type StubPerplexityClient struct{}

// ChatCompletion implements perplexity.Client.
func (s *StubPerplexityClient) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
	}
	content := prompt.String()

	var text string
	var citations []string
	switch {
	case strings.Contains(content, "DETERMINISTIC EVIDENCE"):
		text, citations = stubIdentityAnswer(content)
	case strings.Contains(content, "EXTRACTED HINTS"):
		text = `{"finding": "not_found", "funding_stage": "Unknown", "latest_round": null, "total_funding_usd": null, "confidence": 0.1, "reasoning": "stub: no public funding found", "sources": []}`
	case strings.Contains(content, "WEBSITE CONTENT"):
		text = `{"products": [{"text": "stub product", "source": "https://example.com"}], "target_customers": [{"text": "stub customers"}], "value_proposition": "stub value proposition", "confidence": 0.5, "reasoning": "stub profile", "sources": ["https://example.com"]}`
	case strings.Contains(content, "internal profile fields"):
		text = `{"confidence": "low", "domain": {"domain_root": "", "website": "", "notes": "stub"}, "funding": {"stage": "", "latest_amount_usd": null, "summary": "stub"}, "sources": [], "summary": "stub single pass"}`
	default:
		text = `{}`
	}

	return &perplexity.ChatCompletionResponse{
		ID:        "stub-pplx-001",
		Model:     req.Model,
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: text}}},
		Usage:     perplexity.Usage{PromptTokens: 200, CompletionTokens: 80},
		Citations: citations,
	}, nil
}

func stubIdentityAnswer(prompt string) (string, []string) {
	domain := ""
	if m := stubDomainRE.FindStringSubmatch(prompt); m != nil {
		domain = m[1]
	}
	if domain == "" {
		return `{"status": "unknown", "confidence": 0.1, "evidence_path": "none", "reasoning": "stub: no domain supplied", "sources": []}`, nil
	}
	site := "https://" + domain
	text := fmt.Sprintf(`{"current_domain": %q, "website": %q, "status": "active", "confidence": 0.8, "evidence_path": "name_search", "reasoning": "stub: roster domain accepted", "sources": [%q]}`,
		domain, site, site)
	return text, []string{site}
}

// --- Anthropic Stub ---

// StubAnthropicClient implements anthropic.Client with a canned synthesis
// narrative.
type StubAnthropicClient struct{}

// CreateMessage implements anthropic.Client.
func (s *StubAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	content := ""
	for _, m := range req.Messages {
		content += m.Content
	}

	text := `{"value": "stub"}`
	if strings.Contains(content, "COMPANY DATA") {
		text = `{"identity": "Stub identity narrative.", "overview": "Stub overview.", "funding": "Stub funding summary.", "recent_activity": "Stub activity.", "quality_note": "Generated offline from canned data.", "improvements": ["Run with live credentials."]}`
	}

	return &anthropic.MessageResponse{
		ID:         "stub-msg-001",
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage: anthropic.TokenUsage{
			InputTokens:  300,
			OutputTokens: 120,
		},
	}, nil
}

// --- Jina Stub ---

// StubJinaClient implements jina.Client with canned pages and results.
type StubJinaClient struct{}

// Read implements jina.Client.
func (s *StubJinaClient) Read(_ context.Context, targetURL string) (*jina.ReadResponse, error) {
	return &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			Title:   "Stub Page",
			URL:     targetURL,
			Content: "# Stub Page\n\nWe build stub products for stub customers.",
			Usage:   jina.Usage{Tokens: 40},
		},
	}, nil
}

// Search implements jina.Client.
func (s *StubJinaClient) Search(_ context.Context, query string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	return &jina.SearchResponse{
		Code: 200,
		Data: []jina.SearchResult{
			{
				Title:       "Stub result for " + query,
				URL:         "https://example.com/stub",
				Description: "A stub search result.",
			},
		},
		Meta: jina.SearchMeta{Usage: jina.Usage{Tokens: 10}},
	}, nil
}

// --- Prober Stub ---

// StubProber reports every domain as reachable without redirects.
type StubProber struct{}

// Probe implements DomainProber.
func (s *StubProber) Probe(_ context.Context, domain string) (*ProbeResult, error) {
	u := "https://" + domain
	return &ProbeResult{
		RequestedURL: u,
		FinalURL:     u,
		FinalDomain:  domain,
		StatusCode:   200,
		Reachable:    true,
		Title:        domain,
	}, nil
}
