// Package larekapi talks to the larek web API: it lists products, fetches
// product details and submits orders.
package larekapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/larek/internal/domain"
)

// RequestIDHeader carries the correlation id on every outgoing request.
const RequestIDHeader = "X-Request-ID"

const defaultTimeout = 30 * time.Second

// Client implements domain.CatalogSource and domain.OrderSink over HTTP.
type Client struct {
	baseURL    string
	cdnURL     string
	httpClient *http.Client
	logger     *slog.Logger
	requestID  func(ctx context.Context) string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestID sets the function that extracts an inbound request id from
// the context. When it returns "" a new uuid is used.
func WithRequestID(fn func(ctx context.Context) string) Option {
	return func(c *Client) {
		c.requestID = fn
	}
}

// NewClient creates a client for the API at baseURL. Product image paths are
// resolved against cdnURL.
func NewClient(baseURL, cdnURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cdnURL:     strings.TrimRight(cdnURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type productList struct {
	Total int              `json:"total"`
	Items []domain.Product `json:"items"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ListProducts fetches the full catalog.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const op = "larekapi.list_products"

	var list productList
	if err := c.do(ctx, op, http.MethodGet, "/product", nil, &list); err != nil {
		return nil, err
	}

	products := make([]domain.Product, len(list.Items))
	for i, p := range list.Items {
		products[i] = c.withImage(p)
	}
	return products, nil
}

// GetProduct fetches one product with its full description.
func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	const op = "larekapi.get_product"

	var p domain.Product
	err := c.do(ctx, op, http.MethodGet, "/product/"+url.PathEscape(id), nil, &p)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return domain.Product{}, domain.NotFound(op, "product", id)
		}
		return domain.Product{}, err
	}
	return c.withImage(p), nil
}

// SubmitOrder posts the order. A 400 response is returned as a
// ValidationError carrying the server's message.
func (c *Client) SubmitOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	const op = "larekapi.submit_order"

	var result domain.OrderResult
	if err := c.do(ctx, op, http.MethodPost, "/order", order, &result); err != nil {
		return domain.OrderResult{}, err
	}
	return result, nil
}

func (c *Client) withImage(p domain.Product) domain.Product {
	if p.Image != "" && c.cdnURL != "" && !strings.HasPrefix(p.Image, "http") {
		p.Image = c.cdnURL + "/" + strings.TrimLeft(p.Image, "/")
	}
	return p
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return domain.Internal(err, op, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.Internal(err, op, "failed to create request")
	}

	requestID := ""
	if c.requestID != nil {
		requestID = c.requestID(ctx)
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Transport(err, op, "request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Transport(err, op, "failed to read response")
	}

	c.logger.Debug("larek api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, method, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.Transport(err, op, "failed to parse response")
	}
	return nil
}

func statusError(op, method string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}

	switch {
	case status == http.StatusNotFound && method == http.MethodGet:
		return &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: msg}
	case status == http.StatusBadRequest && method == http.MethodPost:
		return &domain.ValidationError{Op: op, Fields: map[string]string{"order": msg}}
	default:
		return domain.Transport(
			errors.New(msg),
			op,
			fmt.Sprintf("larek api error (status %d)", status),
		)
	}
}
