package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to an already-running inference service over HTTP. It
// does not own the process: process lifecycle for the inference service is
// the deployer's concern (spec.md explicitly keeps "the inference RPC client
// (opaque predict/load/unload endpoints)" out of scope; only the wire
// contract is ours). The subprocess-spawn plus SIGTERM-then-SIGKILL
// shutdown pattern is instead applied one layer up, for the Job Manager's
// per-job worker process (internal/jobs/worker.go).
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) GetMetadata(ctx context.Context) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metadata", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get_metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get_metadata returned status %d", resp.StatusCode)
	}
	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &meta, nil
}

type loadUnloadRequest struct {
	SetterName string `json:"setter_name"`
	CacheKey   string `json:"cache_key"`
	LRUSize    int    `json:"lru_size,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

func (c *HTTPClient) LoadModel(ctx context.Context, setterName, cacheKey string, lruSize, ttlSeconds int) error {
	return c.postVoid(ctx, "/load", loadUnloadRequest{setterName, cacheKey, lruSize, ttlSeconds})
}

func (c *HTTPClient) UnloadModel(ctx context.Context, setterName, cacheKey string) error {
	return c.postVoid(ctx, "/unload", loadUnloadRequest{SetterName: setterName, CacheKey: cacheKey})
}

func (c *HTTPClient) postVoid(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}

type wireInput struct {
	Bytes      string         `json:"bytes,omitempty"` // base64
	Structured any            `json:"structured,omitempty"`
}

type predictRequest struct {
	SetterName string      `json:"setter_name"`
	CacheKey   string      `json:"cache_key"`
	LRUSize    int         `json:"lru_size,omitempty"`
	TTLSeconds int         `json:"ttl_seconds,omitempty"`
	Inputs     []wireInput `json:"inputs"`
}

type wireOutput struct {
	Bytes      string         `json:"bytes,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
}

type predictResponse struct {
	Outputs []wireOutput `json:"outputs"`
}

// Predict calls the inference service's predict endpoint in one batch
// (spec.md §4.4 step 3: "Call inference client predict(setter_name,
// cache_key, lru_size, ttl, inputs) -> outputs").
func (c *HTTPClient) Predict(ctx context.Context, setterName, cacheKey string, lruSize, ttlSeconds int, inputs []Input) ([]Output, error) {
	wireInputs := make([]wireInput, len(inputs))
	for i, in := range inputs {
		wi := wireInput{Structured: in.Structured}
		if in.Bytes != nil {
			wi.Bytes = base64.StdEncoding.EncodeToString(in.Bytes)
		}
		wireInputs[i] = wi
	}

	reqBody := predictRequest{
		SetterName: setterName,
		CacheKey:   cacheKey,
		LRUSize:    lruSize,
		TTLSeconds: ttlSeconds,
		Inputs:     wireInputs,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict returned status %d", resp.StatusCode)
	}

	var predictResp predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predictResp); err != nil {
		return nil, fmt.Errorf("failed to decode predict response: %w", err)
	}

	outputs := make([]Output, len(predictResp.Outputs))
	for i, wo := range predictResp.Outputs {
		out := Output{Structured: wo.Structured}
		if wo.Bytes != "" {
			b, err := base64.StdEncoding.DecodeString(wo.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to decode output %d bytes: %w", i, err)
			}
			out.Bytes = b
		}
		outputs[i] = out
	}
	return outputs, nil
}
