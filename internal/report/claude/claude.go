package claude

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/report"
	"github.com/vbonduro/snackcheck/internal/search"
)

// maxTokens leaves room for a long, emoji-heavy analysis.
const maxTokens = 2048

var searchTool = anthropic.ToolDefinition{
	Name:        search.ToolName,
	Description: search.ToolDescription,
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "The web search query."},
		},
		"required": []string{"query"},
	},
}

type Generator struct {
	client   *anthropic.Client
	model    string
	searcher search.Searcher
	logger   *slog.Logger
}

// NewGenerator returns a Claude generator. searcher may be nil to disable
// tools. opts are passed to the Anthropic client (tests use WithBaseURL).
func NewGenerator(apiKey, model string, searcher search.Searcher, logger *slog.Logger, opts ...anthropic.ClientOption) *Generator {
	return &Generator{
		client:   anthropic.NewClient(apiKey, opts...),
		model:    model,
		searcher: searcher,
		logger:   logger,
	}
}

func (g *Generator) Name() string { return "claude:" + g.model }

func (g *Generator) Generate(ctx context.Context, ingredientsText, healthContext string) (string, error) {
	messages := []anthropic.Message{
		anthropic.NewUserTextMessage(report.BuildPrompt(healthContext, ingredientsText)),
	}

	for round := 0; ; round++ {
		useTools := g.searcher != nil && round < report.MaxToolRounds
		req := anthropic.MessagesRequest{
			Model:     anthropic.Model(g.model),
			System:    report.System(),
			Messages:  messages,
			MaxTokens: maxTokens,
		}
		if g.searcher != nil {
			// Tools stay defined once the history holds tool blocks; the last
			// round only forbids calling them.
			req.Tools = []anthropic.ToolDefinition{searchTool}
			if !useTools {
				req.ToolChoice = &anthropic.ToolChoice{Type: "none"}
			}
		}

		resp, err := g.client.CreateMessages(ctx, req)
		if err != nil {
			return "", apperr.Generation("claude.Generate", "model request failed", err)
		}

		uses := toolUses(resp.Content)
		if resp.StopReason != anthropic.MessagesStopReasonToolUse || len(uses) == 0 || !useTools {
			return textOf(resp.Content), nil
		}

		messages = append(messages, anthropic.Message{Role: anthropic.RoleAssistant, Content: resp.Content})

		results := anthropic.Message{Role: anthropic.RoleUser}
		for _, use := range uses {
			out, isErr, err := g.runTool(ctx, use)
			if err != nil {
				return "", apperr.Generation("claude.Generate", "web search failed", err)
			}
			msg := anthropic.NewToolResultsMessage(use.ID, out, isErr)
			results.Content = append(results.Content, msg.Content...)
		}
		messages = append(messages, results)
	}
}

func (g *Generator) runTool(ctx context.Context, use *anthropic.MessageContentToolUse) (string, bool, error) {
	if use.Name != search.ToolName {
		return "unknown tool " + use.Name, true, nil
	}
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(use.Input, &input); err != nil {
		return "invalid input: " + err.Error(), true, nil
	}
	g.logger.Info("web search requested", "provider", "claude", "query", input.Query)
	results, err := g.searcher.Search(ctx, input.Query)
	if err != nil {
		return "", false, err
	}
	return search.FormatResults(results), false, nil
}

func toolUses(content []anthropic.MessageContent) []*anthropic.MessageContentToolUse {
	var uses []*anthropic.MessageContentToolUse
	for _, c := range content {
		if c.Type == anthropic.MessagesContentTypeToolUse && c.MessageContentToolUse != nil {
			uses = append(uses, c.MessageContentToolUse)
		}
	}
	return uses
}

func textOf(content []anthropic.MessageContent) string {
	var parts []string
	for _, c := range content {
		if c.Type == anthropic.MessagesContentTypeText && c.Text != nil {
			parts = append(parts, *c.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
