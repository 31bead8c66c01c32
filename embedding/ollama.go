package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaEmbedBase  = "http://localhost:11434"
	defaultOllamaEmbedModel = "nomic-embed-text"
)

// OllamaEmbedder calls the Ollama local API (no API key required).
type OllamaEmbedder struct {
	BaseURL    string
	ModelName  string
	HTTPClient *http.Client
}

// NewOllamaEmbedder creates an embedder backed by a local Ollama server.
func NewOllamaEmbedder(baseURL string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaEmbedBase
	}
	return &OllamaEmbedder{
		BaseURL:    baseURL,
		ModelName:  defaultOllamaEmbedModel,
		HTTPClient: http.DefaultClient,
	}
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float32 `json:"embedding"`
}

// Model implements Embedder.
func (e *OllamaEmbedder) Model() string {
	if e.ModelName == "" {
		return defaultOllamaEmbedModel
	}
	return e.ModelName
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body := ollamaEmbedReq{Model: e.Model(), Prompt: text}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("ollama encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base()+"/api/embeddings", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama api error %d: %s", resp.StatusCode, string(bs))
	}
	var out ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama decode: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embeddings: empty embedding")
	}
	return out.Embedding, nil
}

// Ping implements Embedder by listing local models.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base()+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags %d", resp.StatusCode)
	}
	return nil
}

func (e *OllamaEmbedder) base() string {
	if e.BaseURL == "" {
		return defaultOllamaEmbedBase
	}
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e *OllamaEmbedder) client() *http.Client {
	if e.HTTPClient == nil {
		return http.DefaultClient
	}
	return e.HTTPClient
}
