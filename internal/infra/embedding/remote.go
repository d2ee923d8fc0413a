package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteClient calls a vector inference endpoint that accepts
// {"text": "..."} and answers with a JSON float array.
type RemoteClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteClient builds a client for the embedding endpoint.
func NewRemoteClient(endpoint string) (*RemoteClient, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("embedding endpoint cannot be empty")
	}
	return &RemoteClient{
		endpoint: strings.TrimSpace(endpoint),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type embedRequest struct {
	Text string `json:"text"`
}

// Embed converts text into a dense vector.
func (c *RemoteClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text cannot be empty")
	}
	payload, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("embed request error: status=%d body=%s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	return decodeVector(body)
}

// decodeVector accepts both a plain vector and a single-element batch,
// which is what batched inference servers return for one input.
func decodeVector(body []byte) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal(body, &vector); err == nil {
		if len(vector) == 0 {
			return nil, errors.New("embedding response empty")
		}
		return vector, nil
	}
	var batch [][]float32
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(batch) == 0 || len(batch[0]) == 0 {
		return nil, errors.New("embedding response empty")
	}
	return batch[0], nil
}
