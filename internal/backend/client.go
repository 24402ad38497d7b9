// Package backend is the HTTP client for the storefront REST API. It returns
// raw payload values; shaping them is the display package's job.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storebot/internal/monitor"
	"storebot/pkg/breaker"
	"storebot/pkg/log"
	"storebot/pkg/payload"
)

// Endpoint names double as circuit breaker and metric labels.
const (
	EndpointOrdersList   = "orders.list"
	EndpointOrderGet     = "orders.get"
	EndpointBooksSearch  = "books.search"
	EndpointBooksBrowse  = "books.browse"
	EndpointBooksFeature = "books.featured"
	EndpointFAQs         = "faqs"
	EndpointCoupons      = "coupons"
	EndpointContact      = "contacts"
	EndpointFeedback     = "feedbacks"
)

// maxErrorBody caps how much of a failed response is kept for logs.
const maxErrorBody = 512

// DefaultMaxBody caps a successful response body.
const DefaultMaxBody = 4 << 20

// ErrBodyTooLarge is returned when a response exceeds the configured cap.
var ErrBodyTooLarge = errors.New("backend response too large")

// Config configures the backend client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// MaxBody is the largest accepted response body in bytes.
	MaxBody int64
}

// Client calls the storefront API. Safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	maxBody   int64
	breakers  *breaker.Manager
	metrics   *monitor.MetricsCollector
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s: status %d", e.Endpoint, e.StatusCode)
}

// NotFound lets callers outside this package recognise a 404 without
// importing StatusError.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// CountsAsSuccess tells the circuit breaker which failures are the
// shopper's problem rather than the backend's: 4xx answers prove the
// endpoint is up.
func CountsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// NewClient builds a client. breakers may be nil to call without
// protection; metrics may be nil.
func NewClient(cfg Config, breakers *breaker.Manager, metrics *monitor.MetricsCollector) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "storebot/1.0"
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}

	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBody,
		breakers:  breakers,
		metrics:   metrics,
	}, nil
}

type tokenKey struct{}

// WithToken attaches the shopper's bearer token to ctx. It is forwarded to
// the backend verbatim and never inspected here.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the token set by WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// ListOrders fetches one page of the shopper's order listing.
func (c *Client) ListOrders(ctx context.Context, page int) (payload.Value, error) {
	q := url.Values{"page": {strconv.Itoa(page)}}
	return c.get(ctx, EndpointOrdersList, "/orders/my", q)
}

// GetOrder fetches a single order by numeric id.
func (c *Client) GetOrder(ctx context.Context, id string) (payload.Value, error) {
	return c.get(ctx, EndpointOrderGet, "/orders/"+url.PathEscape(id), nil)
}

// SearchBooks runs a free-text catalog search.
func (c *Client) SearchBooks(ctx context.Context, query string) (payload.Value, error) {
	return c.get(ctx, EndpointBooksSearch, "/books/search", url.Values{"q": {query}})
}

// BooksByCategory lists books in a category.
func (c *Client) BooksByCategory(ctx context.Context, category string) (payload.Value, error) {
	return c.get(ctx, EndpointBooksBrowse, "/books", url.Values{"category": {category}})
}

// BooksByAuthor lists books by an author.
func (c *Client) BooksByAuthor(ctx context.Context, author string) (payload.Value, error) {
	return c.get(ctx, EndpointBooksBrowse, "/books", url.Values{"author": {author}})
}

// FeaturedBooks lists trending books.
func (c *Client) FeaturedBooks(ctx context.Context) (payload.Value, error) {
	return c.get(ctx, EndpointBooksFeature, "/books/featured", nil)
}

// FAQs lists the help-center entries.
func (c *Client) FAQs(ctx context.Context) (payload.Value, error) {
	return c.get(ctx, EndpointFAQs, "/faqs", nil)
}

// Coupons lists the currently valid promotions.
func (c *Client) Coupons(ctx context.Context) (payload.Value, error) {
	return c.get(ctx, EndpointCoupons, "/coupons", nil)
}

// SubmitContact posts a contact request.
func (c *Client) SubmitContact(ctx context.Context, body any) error {
	_, err := c.post(ctx, EndpointContact, "/contacts", body)
	return err
}

// SubmitFeedback posts shopper feedback.
func (c *Client) SubmitFeedback(ctx context.Context, body any) error {
	_, err := c.post(ctx, EndpointFeedback, "/feedbacks", body)
	return err
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) (payload.Value, error) {
	return c.do(ctx, endpoint, http.MethodGet, path, query, nil)
}

func (c *Client) post(ctx context.Context, endpoint, path string, body any) (payload.Value, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return payload.Null(), fmt.Errorf("encode %s body: %w", endpoint, err)
	}
	return c.do(ctx, endpoint, http.MethodPost, path, nil, raw)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body []byte) (payload.Value, error) {
	var result payload.Value
	call := func() error {
		v, err := c.roundTrip(ctx, endpoint, method, path, query, body)
		result = v
		return err
	}

	var err error
	if c.breakers != nil {
		err = c.breakers.Execute(ctx, endpoint, call)
	} else {
		err = call()
	}
	if err != nil {
		return payload.Null(), err
	}
	return result, nil
}

func (c *Client) roundTrip(ctx context.Context, endpoint, method, path string, query url.Values, body []byte) (payload.Value, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return payload.Null(), fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	monitor.InjectHTTPHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(endpoint, "error", time.Since(start))
		return payload.Null(), fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordBackendRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Debug("Backend returned non-2xx")
		return payload.Null(), &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	if resp.StatusCode == http.StatusNoContent {
		return payload.Null(), nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return payload.Null(), fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if int64(len(data)) > c.maxBody {
		return payload.Null(), fmt.Errorf("%s: %w (over %d bytes)", endpoint, ErrBodyTooLarge, c.maxBody)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return payload.Null(), nil
	}
	v, err := payload.Decode(data)
	if err != nil {
		return payload.Null(), fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return v, nil
}
