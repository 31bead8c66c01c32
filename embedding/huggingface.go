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
	defaultHFBase  = "https://api-inference.huggingface.co"
	defaultHFModel = "sentence-transformers/all-MiniLM-L6-v2"
)

// HuggingFaceEmbedder calls the HuggingFace Inference API feature-extraction
// pipeline for a hosted sentence-transformers model.
type HuggingFaceEmbedder struct {
	APIToken   string
	ModelName  string
	BaseURL    string
	HTTPClient *http.Client
	// WaitForModel asks the API to block while a cold model loads instead of
	// returning 503.
	WaitForModel bool
}

// NewHuggingFaceEmbedder creates an embedder backed by the hosted
// all-MiniLM-L6-v2 model.
func NewHuggingFaceEmbedder(apiToken string) *HuggingFaceEmbedder {
	return &HuggingFaceEmbedder{
		APIToken:   apiToken,
		ModelName:  defaultHFModel,
		BaseURL:    defaultHFBase,
		HTTPClient: http.DefaultClient,
	}
}

type hfEmbedReq struct {
	Inputs  []string `json:"inputs"`
	Options *struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options,omitempty"`
}

type hfStatusResp struct {
	Loaded bool   `json:"loaded"`
	State  string `json:"state"`
}

// Model implements Embedder.
func (e *HuggingFaceEmbedder) Model() string {
	if e.ModelName == "" {
		return defaultHFModel
	}
	return e.ModelName
}

// Embed implements Embedder.
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body := hfEmbedReq{Inputs: []string{text}}
	if e.WaitForModel {
		body.Options = &struct {
			WaitForModel bool `json:"wait_for_model"`
		}{WaitForModel: true}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	url := e.base() + "/pipeline/feature-extraction/" + e.Model()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	if e.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIToken)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("huggingface inference %d: %s", resp.StatusCode, string(bs))
	}
	var out [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, fmt.Errorf("huggingface inference: empty embedding")
	}
	return out[0], nil
}

// Ping implements Embedder via the hosted model status endpoint.
func (e *HuggingFaceEmbedder) Ping(ctx context.Context) error {
	url := e.base() + "/status/" + e.Model()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if e.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIToken)
	}
	resp, err := e.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("huggingface status %d", resp.StatusCode)
	}
	var st hfStatusResp
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return err
	}
	if !st.Loaded {
		return fmt.Errorf("huggingface model %s not loaded (state %s)", e.Model(), st.State)
	}
	return nil
}

func (e *HuggingFaceEmbedder) base() string {
	if e.BaseURL == "" {
		return defaultHFBase
	}
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e *HuggingFaceEmbedder) client() *http.Client {
	if e.HTTPClient == nil {
		return http.DefaultClient
	}
	return e.HTTPClient
}
