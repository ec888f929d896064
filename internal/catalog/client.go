package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a failure returned by the persistence service. Message carries
// the service's human-readable text verbatim; the import engine surfaces it
// unchanged as a row's rejection error when a create fails mid-batch.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the persistence service's CRUD API. Both entity kinds are
// keyed by server-assigned numeric ids.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the persistence service at baseURL.
// All requests inherit the given timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListItems returns all items, including soft-deleted ones. Callers that
// need only active records must filter on IsDeleted themselves.
func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.do(ctx, http.MethodGet, "/items", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateItem creates an item. The service assigns id, createdAt and
// updatedAt on the returned record.
func (c *Client) CreateItem(ctx context.Context, item Item) (Item, error) {
	var created Item
	if err := c.do(ctx, http.MethodPost, "/items", item, &created); err != nil {
		return Item{}, err
	}
	return created, nil
}

// UpdateItem replaces the item with the given id.
func (c *Client) UpdateItem(ctx context.Context, id int, item Item) (Item, error) {
	var updated Item
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/items/%d", id), item, &updated); err != nil {
		return Item{}, err
	}
	return updated, nil
}

// DeleteItem removes the item with the given id.
func (c *Client) DeleteItem(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/items/%d", id), nil, nil)
}

// ListBOMs returns all BOM records.
func (c *Client) ListBOMs(ctx context.Context) ([]BOM, error) {
	var boms []BOM
	if err := c.do(ctx, http.MethodGet, "/bom", nil, &boms); err != nil {
		return nil, err
	}
	return boms, nil
}

// CreateBOM creates a BOM record. The service assigns id, createdAt and
// updatedAt on the returned record.
func (c *Client) CreateBOM(ctx context.Context, bom BOM) (BOM, error) {
	var created BOM
	if err := c.do(ctx, http.MethodPost, "/bom", bom, &created); err != nil {
		return BOM{}, err
	}
	return created, nil
}

// UpdateBOM replaces the BOM record with the given id.
func (c *Client) UpdateBOM(ctx context.Context, id int, bom BOM) (BOM, error) {
	var updated BOM
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/bom/%d", id), bom, &updated); err != nil {
		return BOM{}, err
	}
	return updated, nil
}

// DeleteBOM removes the BOM record with the given id.
func (c *Client) DeleteBOM(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/bom/%d", id), nil, nil)
}

// do performs one request against the API. A non-2xx response is converted
// to an *APIError carrying the service's message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, resp.StatusCode),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the service's message from an error response body.
// Falls back to the raw body, then to the HTTP status text.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
