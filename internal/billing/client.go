// Package billing calls the billing service that owns subscription
// grants, renewal schedules and payment state. The rank engine treats
// billing as the single authority on who may track keywords.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/rank"
)

const defaultTimeout = 15 * time.Second

// Config captures the connection parameters for the billing service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is an HTTP client for the billing service API.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a billing client with a shared HTTP client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("billing base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    Config{BaseURL: strings.TrimRight(cfg.BaseURL, "/"), APIKey: cfg.APIKey, Timeout: cfg.Timeout},
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type grantResponse struct {
	OwnerID      int64      `json:"owner_id"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at"`
	MaxTrackings *int       `json:"max_trackings"`
}

type ownersResponse struct {
	Owners []int64 `json:"owners"`
}

type subscriptionsResponse struct {
	Subscriptions []int64 `json:"subscriptions"`
}

type paymentsResponse struct {
	Payments []int64 `json:"payments"`
}

// ActiveGrant returns the current grant of one owner. A missing grant
// maps to rank.ErrNoActiveGrant.
func (c *Client) ActiveGrant(ctx context.Context, ownerID int64) (rank.Grant, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/grants/"+strconv.FormatInt(ownerID, 10))
	if err != nil {
		return rank.Grant{}, err
	}
	if status == http.StatusNotFound {
		return rank.Grant{}, rank.ErrNoActiveGrant
	}
	if status != http.StatusOK {
		return rank.Grant{}, fmt.Errorf("billing returned %d: %s", status, snippet(body))
	}
	var resp grantResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return rank.Grant{}, fmt.Errorf("decode grant: %w", err)
	}
	return rank.Grant{
		OwnerID:      resp.OwnerID,
		Status:       resp.Status,
		ExpiresAt:    resp.ExpiresAt,
		MaxTrackings: resp.MaxTrackings,
	}, nil
}

// ActiveOwners returns the IDs of every owner holding a currently valid
// grant. This is the population the daily collection walks.
func (c *Client) ActiveOwners(ctx context.Context) ([]int64, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/grants?status=ACTIVE")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("billing returned %d: %s", status, snippet(body))
	}
	var resp ownersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode owners: %w", err)
	}
	return resp.Owners, nil
}

// RenewalsDue returns the subscription IDs due for renewal today.
func (c *Client) RenewalsDue(ctx context.Context) ([]int64, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/renewals/due")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("billing returned %d: %s", status, snippet(body))
	}
	var resp subscriptionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode renewals: %w", err)
	}
	return resp.Subscriptions, nil
}

// Renew triggers renewal of one subscription.
func (c *Client) Renew(ctx context.Context, subscriptionID int64) error {
	return c.post(ctx, "/v1/subscriptions/"+strconv.FormatInt(subscriptionID, 10)+"/renew")
}

// FailedPayments returns the payment IDs awaiting a retry.
func (c *Client) FailedPayments(ctx context.Context) ([]int64, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/payments/failed")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("billing returned %d: %s", status, snippet(body))
	}
	var resp paymentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return resp.Payments, nil
}

// RetryPayment triggers a retry of one failed payment.
func (c *Client) RetryPayment(ctx context.Context, paymentID int64) error {
	return c.post(ctx, "/v1/payments/"+strconv.FormatInt(paymentID, 10)+"/retry")
}

func (c *Client) post(ctx context.Context, path string) error {
	body, status, err := c.do(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	}
	return fmt.Errorf("billing returned %d: %s", status, snippet(body))
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build billing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("billing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read billing response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
