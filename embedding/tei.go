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

// TEIEmbedder calls a text-embeddings-inference server, typically a local
// all-MiniLM-L6-v2 deployment.
type TEIEmbedder struct {
	BaseURL    string
	ModelName  string
	HTTPClient *http.Client
}

// NewTEIEmbedder creates an embedder for a text-embeddings-inference server
// at baseURL.
func NewTEIEmbedder(baseURL string) *TEIEmbedder {
	return &TEIEmbedder{
		BaseURL:    baseURL,
		ModelName:  defaultHFModel,
		HTTPClient: http.DefaultClient,
	}
}

type teiEmbedReq struct {
	Inputs []string `json:"inputs"`
}

// Model implements Embedder. The server decides what actually runs; ModelName
// is what gets reported.
func (e *TEIEmbedder) Model() string {
	if e.ModelName == "" {
		return defaultHFModel
	}
	return e.ModelName
}

// Embed implements Embedder.
func (e *TEIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body := teiEmbedReq{Inputs: []string{text}}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("tei encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base()+"/embed", bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tei server %d: %s", resp.StatusCode, string(bs))
	}
	var out [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tei decode: %w", err)
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, fmt.Errorf("tei server: empty embedding")
	}
	return out[0], nil
}

// Ping implements Embedder via the server health endpoint.
func (e *TEIEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base()+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tei health %d", resp.StatusCode)
	}
	return nil
}

func (e *TEIEmbedder) base() string {
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e *TEIEmbedder) client() *http.Client {
	if e.HTTPClient == nil {
		return http.DefaultClient
	}
	return e.HTTPClient
}
