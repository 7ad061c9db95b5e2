// Package escrowhttp is the HTTP adapter to the external escrow
// collaborator service.
package escrowhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/access-broker/access-broker/internal/domain/identity"
)

// Client implements escrow.Collaborator against the escrow service's
// REST API. Errors never carry a business meaning: any non-2xx response
// or transport failure surfaces as an error for the caller to abort on.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates an escrow client. timeout bounds each call independently
// of the request context.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) PaymentReceived(ctx context.Context, id identity.RequestID) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/escrows/%s", c.baseURL, id), nil)
	if err != nil {
		return false, err
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("escrow returned %d", resp.StatusCode)
	}
	var out struct {
		Received bool `json:"received"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Received, nil
}

func (c *Client) ReleasePayment(ctx context.Context, id identity.RequestID) error {
	return c.settle(ctx, id, "release")
}

func (c *Client) RefundPayment(ctx context.Context, id identity.RequestID) error {
	return c.settle(ctx, id, "refund")
}

func (c *Client) settle(ctx context.Context, id identity.RequestID, action string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/escrows/%s/%s", c.baseURL, id, action), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("escrow %s returned %d", action, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
