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
	defaultOpenAIEmbedBase  = "https://api.openai.com/v1"
	defaultOpenAIEmbedModel = "text-embedding-3-small"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	APIKey     string
	ModelName  string
	BaseURL    string
	HTTPClient *http.Client
}

// NewOpenAIEmbedder creates an embedder using the OpenAI embeddings API.
// BaseURL can be pointed at any compatible endpoint.
func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		APIKey:     apiKey,
		ModelName:  defaultOpenAIEmbedModel,
		BaseURL:    defaultOpenAIEmbedBase,
		HTTPClient: http.DefaultClient,
	}
}

type openAIEmbedReq struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openAIEmbedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Model implements Embedder.
func (e *OpenAIEmbedder) Model() string {
	if e.ModelName == "" {
		return defaultOpenAIEmbedModel
	}
	return e.ModelName
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: API key required")
	}
	body := openAIEmbedReq{Input: text, Model: e.Model()}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base()+"/embeddings", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embeddings %d: %s", resp.StatusCode, string(bs))
	}
	var out openAIEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: no data")
	}
	return out.Data[0].Embedding, nil
}

// Ping implements Embedder by listing models, which is free and fast.
func (e *OpenAIEmbedder) Ping(ctx context.Context) error {
	if e.APIKey == "" {
		return fmt.Errorf("openai embedder: API key required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base()+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	resp, err := e.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai models %d", resp.StatusCode)
	}
	return nil
}

func (e *OpenAIEmbedder) base() string {
	if e.BaseURL == "" {
		return defaultOpenAIEmbedBase
	}
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e *OpenAIEmbedder) client() *http.Client {
	if e.HTTPClient == nil {
		return http.DefaultClient
	}
	return e.HTTPClient
}
