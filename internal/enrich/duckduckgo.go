package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultEndpoint is the DuckDuckGo Instant Answer API.
const defaultEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGo performs merchant lookups against the Instant Answer API.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGo creates a lookup client with a per-call timeout.
func NewDuckDuckGo(timeout time.Duration) *DuckDuckGo {
	return &DuckDuckGo{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type instantAnswer struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// Search asks what kind of business the query names and returns the best
// candidate merchant string.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("What type of business is %q?", query))
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("DuckDuckGo.Search: build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("DuckDuckGo.Search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("DuckDuckGo.Search: unexpected status %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("DuckDuckGo.Search: decode response: %w", err)
	}

	if h := strings.TrimSpace(answer.Heading); h != "" {
		return h, nil
	}
	if a := firstSentence(answer.AbstractText); a != "" {
		return a, nil
	}
	for _, t := range answer.RelatedTopics {
		if s := firstSentence(t.Text); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("DuckDuckGo.Search: no results for %q", query)
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".;"); idx > 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
