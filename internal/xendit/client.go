// Package xendit is a thin client for the Xendit invoice API. It keeps no state
// beyond its configuration.
package xendit

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
)

const (
	DefaultBaseURL         = "https://api.xendit.co"
	DefaultTimeout         = 10 * time.Second
	DefaultInvoiceDuration = 86400 // detik, 24 jam
	maxErrorBody           = 4 << 10
)

// ErrUnavailable matches every *UnavailableError.
var ErrUnavailable = errors.New("xendit unavailable")

// UnavailableError reports a transport failure (StatusCode == 0) or a non-2xx answer.
type UnavailableError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xendit %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("xendit %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Category string `json:"category,omitempty"`
}

type InvoiceRequest struct {
	ExternalID  string
	Amount      int64
	PayerEmail  string
	Description string
	Items       []Item
}

// Invoice carries the fields the order core reads; the rest of the provider
// response is ignored.
type Invoice struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoice_url"`
	Amount     int64  `json:"amount"`
}

type Config struct {
	BaseURL            string
	SecretKey          string
	Timeout            time.Duration
	InvoiceDuration    int
	Currency           string
	SuccessRedirectURL string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.InvoiceDuration <= 0 {
		cfg.InvoiceDuration = DefaultInvoiceDuration
	}
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type createInvoiceBody struct {
	ExternalID         string `json:"external_id"`
	Amount             int64  `json:"amount"`
	PayerEmail         string `json:"payer_email,omitempty"`
	Description        string `json:"description"`
	InvoiceDuration    int    `json:"invoice_duration"`
	Currency           string `json:"currency"`
	Items              []Item `json:"items,omitempty"`
	SuccessRedirectURL string `json:"success_redirect_url,omitempty"`
}

func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	body := createInvoiceBody{
		ExternalID:         req.ExternalID,
		Amount:             req.Amount,
		PayerEmail:         req.PayerEmail,
		Description:        req.Description,
		InvoiceDuration:    c.cfg.InvoiceDuration,
		Currency:           c.cfg.Currency,
		Items:              req.Items,
		SuccessRedirectURL: c.cfg.SuccessRedirectURL,
	}
	var inv Invoice
	if err := c.do(ctx, "create invoice", http.MethodPost, "/v2/invoices", body, &inv); err != nil {
		return Invoice{}, err
	}
	if inv.ID == "" || inv.InvoiceURL == "" {
		return Invoice{}, &UnavailableError{Op: "create invoice", Err: errors.New("response without id or invoice_url")}
	}
	return inv, nil
}

func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	var inv Invoice
	err := c.do(ctx, "get invoice", http.MethodGet, "/v2/invoices/"+url.PathEscape(invoiceID), nil, &inv)
	return inv, err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	// Basic auth: username = secret key, password kosong.
	req.SetBasicAuth(c.cfg.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UnavailableError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UnavailableError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
