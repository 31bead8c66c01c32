package provider

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
	defaultHFModel = "google/flan-t5-base"
)

// HuggingFaceClient calls the HuggingFace Inference API for hosted
// text2text-generation models such as flan-t5.
type HuggingFaceClient struct {
	APIToken   string
	ModelName  string
	BaseURL    string
	HTTPClient *http.Client
	// WaitForModel asks the API to block while a cold model loads instead of
	// returning 503.
	WaitForModel bool
}

// HuggingFaceConfig configures the HuggingFace client.
type HuggingFaceConfig struct {
	APIToken     string
	Model        string
	BaseURL      string
	HTTPClient   *http.Client
	WaitForModel bool
}

// NewHuggingFace creates a HuggingFace provider. The default model is
// flan-t5-base, which produces short evaluative feedback well.
func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFaceClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultHFBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultHFModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &HuggingFaceClient{
		APIToken:     cfg.APIToken,
		ModelName:    model,
		BaseURL:      strings.TrimSuffix(base, "/"),
		HTTPClient:   client,
		WaitForModel: cfg.WaitForModel,
	}
}

type hfGenerateReq struct {
	Inputs     string `json:"inputs"`
	Parameters *struct {
		MaxLength   int     `json:"max_length,omitempty"`
		Temperature float64 `json:"temperature,omitempty"`
	} `json:"parameters,omitempty"`
	Options *struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options,omitempty"`
}

type hfGenerateResp []struct {
	GeneratedText string `json:"generated_text"`
}

// Model implements Provider.
func (c *HuggingFaceClient) Model() string {
	if c.ModelName == "" {
		return defaultHFModel
	}
	return c.ModelName
}

// Complete implements Provider. Text2text models take a single flat input,
// so a system prompt is prepended to the user prompt.
func (c *HuggingFaceClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	input := req.Prompt
	if req.System != "" {
		input = req.System + "\n\n" + input
	}
	body := hfGenerateReq{Inputs: input}
	if req.MaxTokens != 0 || req.Temperature != 0 {
		body.Parameters = &struct {
			MaxLength   int     `json:"max_length,omitempty"`
			Temperature float64 `json:"temperature,omitempty"`
		}{MaxLength: req.MaxTokens, Temperature: req.Temperature}
	}
	if c.WaitForModel {
		body.Options = &struct {
			WaitForModel bool `json:"wait_for_model"`
		}{WaitForModel: true}
	}
	model := req.Model
	if model == "" {
		model = c.Model()
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("huggingface encode: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/models/"+model, &buf)
	if err != nil {
		return nil, err
	}
	if c.APIToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("huggingface api error %d: %s", resp.StatusCode, string(bs))
	}
	var out hfGenerateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("huggingface decode: %w", err)
	}
	if len(out) == 0 || out[0].GeneratedText == "" {
		return nil, fmt.Errorf("huggingface: empty generation")
	}
	return &CompletionResponse{
		Content: strings.TrimSpace(out[0].GeneratedText),
		Model:   model,
	}, nil
}

// Ping implements Provider via the hosted model status endpoint.
func (c *HuggingFaceClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status/"+c.Model(), nil)
	if err != nil {
		return err
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("huggingface status %d", resp.StatusCode)
	}
	var st struct {
		Loaded bool   `json:"loaded"`
		State  string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return err
	}
	if !st.Loaded {
		return fmt.Errorf("huggingface model %s not loaded (state %s)", c.Model(), st.State)
	}
	return nil
}
