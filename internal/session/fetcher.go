package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Fetcher retrieves artifact bytes by reference. Each artifact name maps
// deterministically to a resource below the gateway's image path.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewFetcher constructs a Fetcher for the gateway at baseURL.
func NewFetcher(baseURL string, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// Fetch downloads the artifact identified by name.
func (f *Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	endpoint := f.baseURL + "/images/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("session: build fetch request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: fetch %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("session: fetch %s: status %d", name, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", name, err)
	}
	return data, nil
}
