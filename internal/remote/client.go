// Package remote talks to the external item-listing API that holds a
// project's article collection. The API's shape drifts between deployments,
// so the client probes endpoint paths, list key names, and per-item URL
// fields in fixed priority order instead of hard-coding one layout.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/importer"
)

// endpointPaths are the candidate listing paths, versioned first.
var endpointPaths = []string{
	"/v1/projects/%s/articles",
	"/v1/projects/%s/items",
	"/projects/%s/articles",
	"/projects/%s/items",
}

// listKeys are the key names an item list may hide under, in priority order.
var listKeys = []string{"results", "items", "articles", "data"}

// urlFields are the per-item content-URL fields, in priority order. When
// none match, a "doi" field resolves through doi.org.
var urlFields = []string{"url", "link", "pdf_url", "pdf"}

const (
	maxResponseBytes = 8 << 20

	// maxSnippetRunes caps the abstract carried on a candidate link; the
	// full text comes from the fetch, not the listing.
	maxSnippetRunes = 500
)

// Config carries the remote API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client lists a project's articles.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client. BaseURL must be non-empty.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote API base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// ListArticles fetches the given project's article list and converts each
// item into a candidate import link. Endpoint paths are tried in order; the
// first that answers with a decodable list wins. The last error is returned
// only when every endpoint fails.
func (c *Client) ListArticles(ctx context.Context, projectID string) ([]importer.Link, error) {
	var lastErr error
	for _, path := range endpointPaths {
		endpoint := c.cfg.BaseURL + fmt.Sprintf(path, projectID)
		items, err := c.fetchList(ctx, endpoint)
		if err != nil {
			c.logger.Debug("endpoint candidate failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		links := make([]importer.Link, 0, len(items))
		for _, item := range items {
			links = append(links, itemToLink(item))
		}
		return links, nil
	}
	return nil, fmt.Errorf("all listing endpoints failed: %w", lastErr)
}

func (c *Client) fetchList(ctx context.Context, endpoint string) ([]map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing API returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading listing response: %w", err)
	}
	return decodeItemList(body)
}

// decodeItemList accepts a bare array, an object with the list under one of
// the known keys, or a single item object (wrapped into a one-element list).
func decodeItemList(body []byte) ([]map[string]json.RawMessage, error) {
	var asList []map[string]json.RawMessage
	if err := json.Unmarshal(body, &asList); err == nil {
		return asList, nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, fmt.Errorf("response is neither a list nor an object: %w", err)
	}
	for _, key := range listKeys {
		raw, ok := asObject[key]
		if !ok {
			continue
		}
		var nested []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			return nested, nil
		}
	}
	// An object carrying id or title is treated as a single item.
	for _, key := range []string{"id", "title"} {
		if _, ok := asObject[key]; ok {
			return []map[string]json.RawMessage{asObject}, nil
		}
	}
	return nil, fmt.Errorf("no item list found under keys %v", listKeys)
}

// itemToLink maps one raw item onto a candidate link, probing the known
// field spellings.
func itemToLink(item map[string]json.RawMessage) importer.Link {
	link := importer.Link{
		Title:    stringField(item, "title", "name"),
		Abstract: clipSnippet(stringField(item, "abstract", "summary")),
		Authors:  authorsField(item),
	}
	for _, field := range urlFields {
		if u := stringField(item, field); u != "" {
			link.URL = u
			return link
		}
	}
	if doi := stringField(item, "doi"); doi != "" {
		link.URL = "https://doi.org/" + doi
	}
	return link
}

func clipSnippet(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSnippetRunes {
		return s
	}
	return string(runes[:maxSnippetRunes])
}

// stringField returns the first candidate key holding a non-empty string.
func stringField(item map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// authorsField handles both a list of names and a single author string.
func authorsField(item map[string]json.RawMessage) []string {
	for _, key := range []string{"authors", "author"} {
		raw, ok := item[key]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil && single != "" {
			return []string{single}
		}
	}
	return nil
}
