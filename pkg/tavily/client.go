// Package tavily is a minimal client for the Tavily web search API.
package tavily

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

const (
	DefaultBaseURL = "https://api.tavily.com"
	searchPath     = "/search"
	searchDepth    = "advanced"
	maxResults     = 5
)

var (
	ErrMissingAPIKey   = errors.New("Please add your Tavily API key in the settings to use the search feature. You can get one at https://tavily.com")
	ErrEmptyQuery      = errors.New("Search query cannot be empty.")
	ErrUnauthorized    = errors.New("Invalid Tavily API key. Please check your settings and ensure you have entered a valid API key from https://tavily.com")
	ErrInvalidResponse = errors.New("Invalid response format from Tavily API")
)

// APIError is a non-2xx answer other than 401.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

type Result struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Source        string  `json:"source"`
	PublishedDate string  `json:"published_date,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
	Query   string   `json:"query"`
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains"`
	ExcludeDomains []string `json:"exclude_domains"`
	MaxResults     int      `json:"max_results"`
}

type rawResponse struct {
	Results *[]Result `json:"results"`
	Query   string    `json:"query"`
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	hc      *http.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Search runs one advanced search capped at five results. The query and key are
// validated before any request is made; failed requests are never retried.
func (c *Client) Search(ctx context.Context, apiKey, query string) (Response, error) {
	if apiKey == "" {
		return Response{}, ErrMissingAPIKey
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, ErrEmptyQuery
	}

	body, err := json.Marshal(
		searchRequest{
			Query:          query,
			SearchDepth:    searchDepth,
			IncludeDomains: []string{},
			ExcludeDomains: []string{},
			MaxResults:     maxResults,
		},
	)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("executing HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, statusError(resp, raw)
	}

	var parsed rawResponse
	if err = json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed.Results == nil {
		return Response{}, fmt.Errorf("%w: missing results", ErrInvalidResponse)
	}

	results := make([]Result, 0, len(*parsed.Results))
	for _, r := range *parsed.Results {
		results = append(results, normalize(r))
	}
	if parsed.Query == "" {
		parsed.Query = query
	}
	return Response{Results: results, Query: parsed.Query}, nil
}

func statusError(resp *http.Response, raw []byte) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	message := "Search failed"
	var errResp errorResponse
	if err := json.Unmarshal(raw, &errResp); err != nil {
		message = resp.Status
	} else if errResp.Error != nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

func normalize(r Result) Result {
	if r.Title == "" {
		r.Title = "Untitled"
	}
	if r.Content == "" {
		r.Content = "No content available"
	}
	if r.Source == "" {
		r.Source = r.URL
	}
	if r.Source == "" {
		r.Source = "Unknown source"
	}
	if r.URL == "" {
		r.URL = "#"
	}
	return r
}
