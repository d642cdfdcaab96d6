// Package client talks to the ZenFi API on behalf of one signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zenfi/core/internal/activation"
	"github.com/zenfi/core/internal/auth"
	"github.com/zenfi/core/internal/blobstore"
	"github.com/zenfi/core/internal/records"
)

var ErrForbidden = errors.New("forbidden")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses onto the sentinel errors callers match.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return auth.ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return records.ErrNotFound
	case http.StatusConflict:
		return records.ErrConflict
	default:
		return nil
	}
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	_, err := c.do(ctx, method, path, body, out)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("unmarshal: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func (c *Client) CreatePayment(ctx context.Context, amount decimal.Decimal) (*records.Payment, error) {
	var p records.Payment
	err := c.doRequest(ctx, http.MethodPost, "/v1/payments", map[string]any{"amount": amount}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListPayments(ctx context.Context, statuses ...records.PaymentStatus) ([]records.Payment, error) {
	q := url.Values{}
	for _, s := range statuses {
		q.Add("status", string(s))
	}

	path := "/v1/payments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var payments []records.Payment
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*records.Payment, error) {
	var p records.Payment
	if err := c.doRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestStuckPayment returns nil when ownerID has no payment stuck in
// "uploading".
func (c *Client) LatestStuckPayment(ctx context.Context, ownerID string) (*records.Payment, error) {
	var p records.Payment
	status, err := c.do(ctx, http.MethodGet, "/v1/payments/stuck?user_id="+url.QueryEscape(ownerID), nil, &p)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &p, nil
}

func (c *Client) UpdateReceipt(ctx context.Context, paymentID string, u records.ReceiptUpdate) error {
	return c.doRequest(ctx, http.MethodPatch, "/v1/payments/"+url.PathEscape(paymentID)+"/receipt", u, nil)
}

func (c *Client) SetPaymentStatus(ctx context.Context, paymentID string, status records.PaymentStatus) error {
	body := map[string]any{"status": status}
	return c.doRequest(ctx, http.MethodPatch, "/v1/payments/"+url.PathEscape(paymentID)+"/status", body, nil)
}

type nextClaim struct {
	NextClaimTime *time.Time `json:"next_claim_time"`
}

func (c *Client) GetNextClaimTime(ctx context.Context) (*time.Time, error) {
	var resp nextClaim
	if err := c.doRequest(ctx, http.MethodGet, "/v1/profile/next-claim", nil, &resp); err != nil {
		return nil, err
	}
	return resp.NextClaimTime, nil
}

func (c *Client) SetNextClaimTime(ctx context.Context, t *time.Time) error {
	return c.doRequest(ctx, http.MethodPut, "/v1/profile/next-claim", nextClaim{NextClaimTime: t}, nil)
}

func (c *Client) ListObjects(ctx context.Context, dir string) ([]blobstore.Object, error) {
	var objects []blobstore.Object
	err := c.doRequest(ctx, http.MethodGet, "/v1/storage/objects?dir="+url.QueryEscape(dir), nil, &objects)
	if err != nil {
		return nil, err
	}
	return objects, nil
}

type signRequest struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
}

func (c *Client) SignUpload(ctx context.Context, path, contentType string) (*blobstore.SignedURL, error) {
	var signed blobstore.SignedURL
	err := c.doRequest(ctx, http.MethodPost, "/v1/storage/sign-upload", signRequest{Path: path, ContentType: contentType}, &signed)
	if err != nil {
		return nil, err
	}
	return &signed, nil
}

func (c *Client) SignDownload(ctx context.Context, path string) (*blobstore.SignedURL, error) {
	var signed blobstore.SignedURL
	err := c.doRequest(ctx, http.MethodPost, "/v1/storage/sign-download", signRequest{Path: path}, &signed)
	if err != nil {
		return nil, err
	}
	return &signed, nil
}

func (c *Client) PublicURL(ctx context.Context, path string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	err := c.doRequest(ctx, http.MethodGet, "/v1/storage/public-url?path="+url.QueryEscape(path), nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// CreateActivation requests the activation invoice for a withdrawal. The
// API answers 402 with the invoice to pay.
func (c *Client) CreateActivation(ctx context.Context, withdrawalID string) (*activation.Activation, error) {
	body := map[string]any{"withdrawal_id": withdrawalID}

	var a activation.Activation
	err := c.doRequest(ctx, http.MethodPost, "/v1/activations", body, &a)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusPaymentRequired {
		if err := json.Unmarshal([]byte(apiErr.Message), &a); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		return &a, nil
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// GetActivation mirrors activation.Service.GetActivation: an unpaid
// activation is returned together with activation.ErrActivationUnpaid.
func (c *Client) GetActivation(ctx context.Context, withdrawalID string) (*activation.Activation, error) {
	var a activation.Activation
	err := c.doRequest(ctx, http.MethodGet, "/v1/activations/"+url.PathEscape(withdrawalID), nil, &a)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusPaymentRequired:
			if jerr := json.Unmarshal([]byte(apiErr.Message), &a); jerr != nil {
				return nil, activation.ErrActivationUnpaid
			}
			return &a, activation.ErrActivationUnpaid
		case http.StatusGone:
			return nil, activation.ErrActivationExpired
		case http.StatusNotFound:
			return nil, activation.ErrActivationNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}
