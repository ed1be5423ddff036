// Package api provides the HTTP client for the counting server: the batch
// sync endpoint plus thin entity reads and writes. Response shapes are
// treated as opaque here; normalization happens at the cache boundary.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thantzin/stockcount/backend/internal/errors"
	"github.com/thantzin/stockcount/backend/internal/models"
)

// restrictedPolicyCode is the machine-readable code the server attaches when
// rejecting a request on network/location policy grounds. Distinct from a
// generic 4xx/5xx: the network works, the server said no.
const restrictedPolicyCode = "NETWORK_NOT_ALLOWED"

// Config holds client connection configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client executes HTTP calls against the counting server.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Client. A zero timeout defaults to 30 seconds.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// BatchOperation is one queued mutation in wire shape.
type BatchOperation struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// BatchResult is the server's verdict on one submitted operation.
type BatchResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BatchResponse is the batch sync endpoint's response, one result per
// submitted operation in the same id space.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
}

// WireOperation converts a queue item to its wire shape.
func WireOperation(item models.OfflineQueueItem) BatchOperation {
	return BatchOperation{
		ID:        item.ID,
		Type:      string(item.Type),
		Data:      item.Data,
		Timestamp: item.Timestamp,
	}
}

// SyncBatch submits a batch of queued mutations in one request.
func (c *Client) SyncBatch(ctx context.Context, ops []BatchOperation) (*BatchResponse, error) {
	payload := map[string]interface{}{"operations": ops}

	var resp BatchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/sync/batch", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetItem fetches one catalog item by code or barcode.
func (c *Client) GetItem(ctx context.Context, code string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doJSON(ctx, http.MethodGet, "/api/items/"+code, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession creates a counting session.
func (c *Client) CreateSession(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSession updates a session's status fields.
func (c *Client) UpdateSession(ctx context.Context, id string, payload map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doJSON(ctx, http.MethodPut, "/api/sessions/"+id, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitCountLine records one count observation.
func (c *Client) SubmitCountLine(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doJSON(ctx, http.MethodPost, "/api/count-lines", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReportUnknownItem flags a scanned barcode the catalog does not know.
func (c *Client) ReportUnknownItem(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doJSON(ctx, http.MethodPost, "/api/unknown-items", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// serverError is the server's JSON error body.
type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// doJSON executes one request and decodes the JSON response into out.
// Failures come back typed: NETWORK_UNAVAILABLE for transport faults,
// NETWORK_NOT_ALLOWED for policy rejections, REQUEST_FAILED otherwise.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.ErrSerialize, "failed to serialize request body", err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrNetworkUnavailable, "request transport failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		raw, _ := io.ReadAll(res.Body)

		var srvErr serverError
		if json.Unmarshal(raw, &srvErr) == nil && srvErr.Code == restrictedPolicyCode {
			return errors.New(errors.ErrNetworkRestricted, srvErr.Message)
		}

		return errors.New(errors.ErrRequestFailed,
			fmt.Sprintf("%s %s returned status %d: %s", method, path, res.StatusCode, strings.TrimSpace(string(raw))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(errors.ErrSerialize, "failed to decode response", err)
	}
	return nil
}
