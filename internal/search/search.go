package search

import (
	"context"
	"fmt"
	"strings"
)

// ToolName is the function name report providers advertise to the model.
const ToolName = "web_search"

// ToolDescription is shown to the model alongside ToolName.
const ToolDescription = "Search the web for up-to-date facts about food ingredients, additives and their health effects. Returns titles, URLs and short excerpts."

// Searcher runs a web search for the report agent.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type Result struct {
	Title   string
	URL     string
	Content string
}

// FormatResults renders results as numbered plain text for a tool response.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
		if i < len(results)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
