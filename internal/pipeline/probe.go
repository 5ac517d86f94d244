package pipeline

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/dossier-cli/internal/model"
)

const (
	maxRedirects   = 10
	maxProbeBody   = 256 << 10
	probeUserAgent = "Mozilla/5.0 (compatible; dossier-cli/1.0)"
)

// ProbeResult is what a domain probe observed.
type ProbeResult struct {
	RequestedURL string   `json:"requested_url"`
	FinalURL     string   `json:"final_url,omitempty"`
	FinalDomain  string   `json:"final_domain,omitempty"`
	StatusCode   int      `json:"status_code,omitempty"`
	Reachable    bool     `json:"reachable"`
	Redirected   bool     `json:"redirected"`
	Chain        []string `json:"chain,omitempty"`
	Title        string   `json:"title,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// CrossDomain reports whether the probe ended on a different registrable
// domain than the one requested.
func (p *ProbeResult) CrossDomain() bool {
	if p == nil || !p.Reachable || p.FinalDomain == "" {
		return false
	}
	return RegistrableDomain(p.RequestedURL) != RegistrableDomain(p.FinalDomain)
}

// DomainProber checks whether a domain is reachable and where it redirects.
type DomainProber interface {
	Probe(ctx context.Context, domain string) (*ProbeResult, error)
}

// HTTPProber probes domains with plain GET requests, recording the redirect
// chain and the page title.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber creates a prober. A nil client gets a default transport.
func NewHTTPProber(client *http.Client, timeout time.Duration) *HTTPProber {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{client: client, timeout: timeout}
}

// probeCandidates lists the URLs tried for a bare domain, in order.
func probeCandidates(domain string) []string {
	if strings.Contains(domain, "://") {
		return []string{domain}
	}
	return []string{"https://" + domain, "https://www." + domain, "http://" + domain}
}

// Probe tries each candidate URL until one answers with a non-error status.
// An unreachable domain is a valid result, not an error; only a cancelled
// context is returned as an error.
func (p *HTTPProber) Probe(ctx context.Context, domain string) (*ProbeResult, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, eris.New("pipeline: probe: empty domain")
	}

	var last *ProbeResult
	for _, candidate := range probeCandidates(domain) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := p.probeURL(ctx, candidate)
		if res.Reachable {
			return res, nil
		}
		last = res
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return last, nil
}

func (p *HTTPProber) probeURL(ctx context.Context, target string) *ProbeResult {
	res := &ProbeResult{RequestedURL: target}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("User-Agent", probeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := *p.client
	client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return eris.Errorf("pipeline: probe: stopped after %d redirects", maxRedirects)
		}
		res.Chain = append(res.Chain, r.URL.String())
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		res.Error = err.Error()
		zap.L().Debug("pipeline: probe failed", zap.String("url", target), zap.Error(err))
		return res
	}
	defer resp.Body.Close() //nolint:errcheck

	res.StatusCode = resp.StatusCode
	res.FinalURL = resp.Request.URL.String()
	res.FinalDomain = model.NormalizeDomain(resp.Request.URL.Host)
	res.Redirected = len(res.Chain) > 0
	res.Reachable = resp.StatusCode < 400

	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		res.Title = extractTitle(io.LimitReader(resp.Body, maxProbeBody))
	}
	return res
}

// extractTitle returns the text of the first <title> element.
func extractTitle(r io.Reader) string {
	z := html.NewTokenizer(r)
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.Join(strings.Fields(string(z.Text())), " ")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "title" || string(name) == "head" {
				return ""
			}
		}
	}
}
