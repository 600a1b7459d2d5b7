package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSearchEndpoint = "https://api.tavily.com/search"

// SearchClient talks to the Tavily search API.
type SearchClient struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

// NewSearchClient returns a search client with standard defaults.
func NewSearchClient(apiKey string) *SearchClient {
	return &SearchClient{
		APIKey:     apiKey,
		Endpoint:   defaultSearchEndpoint,
		MaxResults: 10,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search runs a query and formats the results as one block per hit.
func (c *SearchClient) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.New("search: empty query")
	}
	if c.APIKey == "" {
		return "", errors.New("search: missing API key")
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	maxResults := c.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	body, err := json.Marshal(searchRequest{
		APIKey:      c.APIKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  maxResults,
	})
	if err != nil {
		return "", fmt.Errorf("search: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("search: decode response: %w", err)
	}
	if len(decoded.Results) == 0 {
		return "No results found.", nil
	}

	blocks := make([]string, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nURL: %s\nContent: %s\n", r.Title, r.URL, r.Content))
	}
	return strings.Join(blocks, "\n---\n"), nil
}

// WebSearch exposes the search client as a model-callable tool.
type WebSearch struct {
	Client *SearchClient
}

func (w *WebSearch) Name() string { return "search_the_web" }

func (w *WebSearch) Description() string {
	return "Search the web for current events and up-to-date information. " +
		"Use this when the answer may depend on recent data you do not have."
}

func (w *WebSearch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "the search query",
			},
		},
		"required": []string{"query"},
	}
}

func (w *WebSearch) Invoke(ctx context.Context, argsJSON string) (string, error) {
	if w.Client == nil {
		return "", errors.New("search: no client configured")
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("search: invalid arguments: %w", err)
	}
	return w.Client.Search(ctx, args.Query)
}
