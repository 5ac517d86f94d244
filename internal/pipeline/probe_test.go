package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProber_FollowsRedirect(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><head><title>\n  Aalo Atomics |\n Advanced Nuclear </title></head><body>hi</body></html>")
	}))
	defer target.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "dossier-cli")
		http.Redirect(w, r, target.URL+"/landing", http.StatusMovedPermanently)
	}))
	defer origin.Close()

	res, err := NewHTTPProber(nil, time.Second).Probe(context.Background(), origin.URL)
	require.NoError(t, err)

	assert.True(t, res.Reachable)
	assert.True(t, res.Redirected)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, target.URL+"/landing", res.FinalURL)
	assert.Equal(t, []string{target.URL + "/landing"}, res.Chain)
	assert.Equal(t, "Aalo Atomics | Advanced Nuclear", res.Title)
	assert.Equal(t, "127.0.0.1", res.FinalDomain)
}

func TestHTTPProber_ErrorStatusIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res, err := NewHTTPProber(srv.Client(), time.Second).Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Empty(t, res.Title)
}

func TestHTTPProber_Errors(t *testing.T) {
	p := NewHTTPProber(nil, 0)

	_, err := p.Probe(context.Background(), "  ")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Probe(ctx, "aalo.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbeCandidates(t *testing.T) {
	assert.Equal(t, []string{"https://aalo.com", "https://www.aalo.com", "http://aalo.com"}, probeCandidates("aalo.com"))
	assert.Equal(t, []string{"http://x.test"}, probeCandidates("http://x.test"))
}

func TestProbeResult_CrossDomain(t *testing.T) {
	assert.True(t, (&ProbeResult{RequestedURL: "https://aalo.com", FinalDomain: "aaloatomics.ai", Reachable: true}).CrossDomain())
	assert.False(t, (&ProbeResult{RequestedURL: "https://aalo.com", FinalDomain: "www.aalo.com", Reachable: true}).CrossDomain())
	assert.False(t, (&ProbeResult{RequestedURL: "https://aalo.com", FinalDomain: "aaloatomics.ai"}).CrossDomain())
	var nilResult *ProbeResult
	assert.False(t, nilResult.CrossDomain())
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Hello", extractTitle(strings.NewReader("<html><head><title>Hello</title></head></html>")))
	assert.Equal(t, "", extractTitle(strings.NewReader("<html><head></head><body><title>late</title></body></html>")))
	assert.Equal(t, "", extractTitle(strings.NewReader("")))
}
