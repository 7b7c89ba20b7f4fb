package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/report"
)

// Generator runs the analysis against a local Ollama model. It does not
// offer web search.
type Generator struct {
	client *api.Client
	model  string
}

func NewGenerator(host, model string) (*Generator, error) {
	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, apperr.Config("ollama.NewGenerator", fmt.Sprintf("invalid ollama host %q", host), err)
	}
	return &Generator{
		client: api.NewClient(base, &http.Client{}),
		model:  model,
	}, nil
}

func (g *Generator) Name() string { return "ollama:" + g.model }

func (g *Generator) Generate(ctx context.Context, ingredientsText, healthContext string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  g.model,
		System: report.System(),
		Prompt: report.BuildPrompt(healthContext, ingredientsText),
		Stream: &stream,
	}

	var out strings.Builder
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", apperr.Generation("ollama.Generate", fmt.Sprintf("ollama returned status %d", statusErr.StatusCode), err)
		}
		return "", apperr.Generation("ollama.Generate", "failed to call ollama", err)
	}

	return out.String(), nil
}
