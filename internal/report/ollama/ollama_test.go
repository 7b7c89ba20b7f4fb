package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/report"
)

func newTestGenerator(t *testing.T, host string) *Generator {
	t.Helper()
	g, err := NewGenerator(host, "llama3.2")
	require.NoError(t, err)
	return g
}

func TestOllamaGenerate(t *testing.T) {
	var got struct {
		Model  string `json:"model"`
		System string `json:"system"`
		Prompt string `json:"prompt"`
		Stream bool   `json:"stream"`
	}
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)

		resp := map[string]interface{}{
			"model":    got.Model,
			"response": "Mostly sugar and salt.",
			"done":     true,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL+"/")

	out, err := g.Generate(context.Background(), "SUGAR, SALT", "hypertension")
	require.NoError(t, err)

	assert.Equal(t, "Mostly sugar and salt.", out)
	assert.Equal(t, "/api/generate", path)
	assert.Equal(t, "llama3.2", got.Model)
	assert.Equal(t, report.System(), got.System)
	assert.Contains(t, got.Prompt, "hypertension")
	assert.Contains(t, got.Prompt, "SUGAR, SALT")
	assert.False(t, got.Stream)
}

func TestOllamaGenerateNetworkError(t *testing.T) {
	g := newTestGenerator(t, "http://localhost:99999")

	_, err := g.Generate(context.Background(), "x", "")

	require.Error(t, err)
	assert.True(t, apperr.IsGeneration(err))
}

func TestOllamaGenerateBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model \"llama3.2\" not found"}`))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)
	_, err := g.Generate(context.Background(), "x", "")

	require.Error(t, err)
	assert.True(t, apperr.IsGeneration(err))
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "not found")
}

func TestOllamaGenerateInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)
	_, err := g.Generate(context.Background(), "x", "")

	require.Error(t, err)
	assert.True(t, apperr.IsGeneration(err))
}

func TestNewGeneratorInvalidHost(t *testing.T) {
	_, err := NewGenerator("http://bad host:11434", "llama3.2")

	require.Error(t, err)
	assert.True(t, apperr.IsConfig(err))
}

func TestName(t *testing.T) {
	assert.Equal(t, "ollama:llama3.2", newTestGenerator(t, "http://h").Name())
}
