package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/report"
	"github.com/vbonduro/snackcheck/internal/search"
)

var searchTool = &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{{
	Name:        search.ToolName,
	Description: search.ToolDescription,
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"query": {Type: genai.TypeString, Description: "The web search query."},
		},
		Required: []string{"query"},
	},
}}}

// noToolCalls keeps the declarations visible while forbidding new calls.
var noToolCalls = &genai.ToolConfig{
	FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone},
}

// Option adjusts the client configuration before the client is built.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(cc *genai.ClientConfig) { cc.HTTPOptions.BaseURL = baseURL }
}

// Generator calls Gemini and lets it use the web_search tool when a
// searcher is configured.
type Generator struct {
	client   *genai.Client
	model    string
	searcher search.Searcher
	logger   *slog.Logger
}

// NewGenerator returns a Gemini generator. searcher may be nil to disable tools.
func NewGenerator(ctx context.Context, apiKey, model string, searcher search.Searcher, logger *slog.Logger, opts ...Option) (*Generator, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, apperr.Config("gemini.NewGenerator", "failed to create gemini client", err)
	}
	return &Generator{
		client:   client,
		model:    model,
		searcher: searcher,
		logger:   logger,
	}, nil
}

func (g *Generator) Name() string { return "gemini:" + g.model }

func (g *Generator) Generate(ctx context.Context, ingredientsText, healthContext string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(report.BuildPrompt(healthContext, ingredientsText), genai.RoleUser),
	}

	for round := 0; ; round++ {
		useTools := g.searcher != nil && round < report.MaxToolRounds
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config(useTools))
		if err != nil {
			return "", apperr.Generation("gemini.Generate", "model request failed", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			reason := "no candidates"
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				reason = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
			}
			return "", apperr.Generation("gemini.Generate", reason, nil)
		}

		reply := resp.Candidates[0].Content
		calls := functionCalls(reply)
		if len(calls) == 0 || !useTools {
			return textOf(reply), nil
		}

		if reply.Role == "" {
			reply.Role = string(genai.RoleModel)
		}
		contents = append(contents, reply)

		results := &genai.Content{Role: string(genai.RoleUser)}
		for _, fc := range calls {
			out, err := g.runTool(ctx, fc)
			if err != nil {
				return "", apperr.Generation("gemini.Generate", "web search failed", err)
			}
			results.Parts = append(results.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: map[string]any{"result": out},
			}})
		}
		contents = append(contents, results)
	}
}

func (g *Generator) config(useTools bool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(report.System(), genai.RoleUser),
	}
	if g.searcher != nil {
		cfg.Tools = []*genai.Tool{searchTool}
		if !useTools {
			cfg.ToolConfig = noToolCalls
		}
	}
	return cfg
}

func (g *Generator) runTool(ctx context.Context, fc *genai.FunctionCall) (string, error) {
	if fc.Name != search.ToolName {
		return fmt.Sprintf("unknown tool %q", fc.Name), nil
	}
	query, _ := fc.Args["query"].(string)
	g.logger.Info("web search requested", "provider", "gemini", "query", query)
	results, err := g.searcher.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return search.FormatResults(results), nil
}

func functionCalls(c *genai.Content) []*genai.FunctionCall {
	var calls []*genai.FunctionCall
	for _, p := range c.Parts {
		if p != nil && p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}

// textOf joins the answer parts, skipping model thoughts.
func textOf(c *genai.Content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
