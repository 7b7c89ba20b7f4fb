package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/report"
	"github.com/vbonduro/snackcheck/internal/search"
)

type stubSearcher struct {
	mu      sync.Mutex
	queries []string
	results []search.Result
	err     error
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.results, s.err
}

// wireRequest is the subset of the generateContent request the tests inspect.
type wireRequest struct {
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text             string `json:"text"`
			FunctionResponse *struct {
				Name     string         `json:"name"`
				Response map[string]any `json:"response"`
			} `json:"functionResponse"`
		} `json:"parts"`
	} `json:"contents"`
	Tools []struct {
		FunctionDeclarations []struct {
			Name string `json:"name"`
		} `json:"functionDeclarations"`
	} `json:"tools"`
	ToolConfig *struct {
		FunctionCallingConfig *struct {
			Mode string `json:"mode"`
		} `json:"functionCallingConfig"`
	} `json:"toolConfig"`
}

func (r wireRequest) callsForbidden() bool {
	return r.ToolConfig != nil && r.ToolConfig.FunctionCallingConfig != nil &&
		r.ToolConfig.FunctionCallingConfig.Mode == "NONE"
}

func newTestGenerator(t *testing.T, baseURL, model string, searcher search.Searcher) *Generator {
	t.Helper()
	g, err := NewGenerator(context.Background(), "g-key", model, searcher, slog.Default(), WithBaseURL(baseURL))
	require.NoError(t, err)
	return g
}

func textResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}},
			"finishReason": "STOP",
		}},
	}
}

func callResponse(query string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{"role": "model", "parts": []map[string]any{{
				"functionCall": map[string]any{"name": search.ToolName, "args": map[string]any{"query": query}},
			}}},
		}},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func TestGenerate(t *testing.T) {
	var got wireRequest
	var path, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, textResponse("**Sugar** is high. 2/5"))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, "gemini-2.0-flash-exp", nil)

	out, err := g.Generate(context.Background(), "SUGAR, SALT", "")
	require.NoError(t, err)

	assert.Equal(t, "**Sugar** is high. 2/5", out)
	assert.True(t, strings.HasSuffix(path, "/models/gemini-2.0-flash-exp:generateContent"), path)
	assert.Equal(t, "g-key", key)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, report.System(), got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	assert.Contains(t, got.Contents[0].Parts[0].Text, "general product analysis")
	assert.Contains(t, got.Contents[0].Parts[0].Text, "SUGAR, SALT")
	assert.Empty(t, got.Tools, "no searcher means no tools")
	assert.Nil(t, got.ToolConfig)
}

func TestGenerateRunsWebSearch(t *testing.T) {
	var mu sync.Mutex
	var requests []wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		n := len(requests)
		mu.Unlock()

		if n == 1 {
			writeJSON(w, callResponse("E211 health effects"))
			return
		}
		writeJSON(w, textResponse("E211 is a preservative."))
	}))
	defer server.Close()

	searcher := &stubSearcher{results: []search.Result{{Title: "E211", URL: "https://example.org", Content: "Sodium benzoate."}}}
	g := newTestGenerator(t, server.URL, "gemini-2.0-flash-exp", searcher)

	out, err := g.Generate(context.Background(), "E211", "diabetes")
	require.NoError(t, err)

	assert.Equal(t, "E211 is a preservative.", out)
	assert.Equal(t, []string{"E211 health effects"}, searcher.queries)
	require.Len(t, requests, 2)
	require.Len(t, requests[0].Tools, 1)
	assert.Equal(t, search.ToolName, requests[0].Tools[0].FunctionDeclarations[0].Name)
	assert.False(t, requests[0].callsForbidden())

	second := requests[1].Contents
	require.Len(t, second, 3)
	assert.Equal(t, "model", second[1].Role)
	require.NotNil(t, second[2].Parts[0].FunctionResponse)
	result, _ := second[2].Parts[0].FunctionResponse.Response["result"].(string)
	assert.Contains(t, result, "Sodium benzoate.")
}

func TestGenerateStopsCallingToolsAfterMaxRounds(t *testing.T) {
	var mu sync.Mutex
	var requests []wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		if req.callsForbidden() {
			writeJSON(w, textResponse("final"))
			return
		}
		writeJSON(w, callResponse("again"))
	}))
	defer server.Close()

	searcher := &stubSearcher{}
	g := newTestGenerator(t, server.URL, "m", searcher)

	out, err := g.Generate(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, "final", out)
	assert.Len(t, searcher.queries, report.MaxToolRounds)
	require.Len(t, requests, report.MaxToolRounds+1)
	last := requests[report.MaxToolRounds]
	assert.Len(t, last.Tools, 1, "declarations stay visible while the history has function calls")
	assert.True(t, last.callsForbidden())
}

func TestGenerateSearchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, callResponse("q"))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, "m", &stubSearcher{err: errors.New("tavily returned status 401")})

	_, err := g.Generate(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, apperr.IsGeneration(err))
}

func TestGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONStatus(w, http.StatusForbidden, map[string]any{
			"error": map[string]any{"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"},
		})
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, "m", nil)

	_, err := g.Generate(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, apperr.IsGeneration(err))
	assert.Contains(t, err.Error(), "403")
}

func TestGenerateBlockedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}})
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, "m", nil)

	_, err := g.Generate(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, apperr.IsGeneration(err))
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerateNetworkError(t *testing.T) {
	g := newTestGenerator(t, "http://localhost:99999", "m", nil)

	_, err := g.Generate(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, apperr.IsGeneration(err))
}

func TestGenerateSkipsThoughts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{
					{"text": "thinking about sugar", "thought": true},
					{"text": "Mostly sugar."},
				}},
			}},
		})
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL, "m", nil)

	out, err := g.Generate(context.Background(), "SUGAR", "")
	require.NoError(t, err)
	assert.Equal(t, "Mostly sugar.", out)
}

func TestName(t *testing.T) {
	assert.Equal(t, "gemini:gemini-2.0-flash-exp", newTestGenerator(t, "http://h", "gemini-2.0-flash-exp", nil).Name())
}
