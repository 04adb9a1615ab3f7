package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/iamvkosarev/websearch-chat/pkg/tavily"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const WebSearchName = "performWebSearch"

type Searcher interface {
	Search(ctx context.Context, apiKey, query string) (tavily.Response, error)
}

type webSearch struct {
	searcher Searcher
	apiKey   func() string
}

// NewWebSearch builds the web search tool. apiKey is read on every call so
// settings changes apply to the next search.
func NewWebSearch(searcher Searcher, apiKey func() string) Tool {
	return &webSearch{
		searcher: searcher,
		apiKey:   apiKey,
	}
}

func (w *webSearch) Name() string {
	return WebSearchName
}

func (w *webSearch) Description() string {
	return "Searches the web for information based on a query and returns summarized results."
}

func (w *webSearch) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"query": {
				Type:        jsonschema.String,
				Description: "The search query to look up on the web",
			},
		},
		Required: []string{"query"},
	}
}

// Invoke never fails: search errors become the tool result so the model can explain them.
func (w *webSearch) Invoke(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	resp, err := w.searcher.Search(ctx, w.apiKey(), query)
	if err != nil {
		return fmt.Sprintf("Error performing web search: %s", err), nil
	}
	return FormatResults(resp.Results), nil
}

// FormatResults renders results as the numbered list fed back to the model.
func FormatResults(results []tavily.Result) string {
	if len(results) == 0 {
		return "No results found."
	}
	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. **%s**\n   - %s\n   - Source: %s", i+1, r.Title, r.Content, r.URL))
	}
	return strings.Join(lines, "\n")
}
