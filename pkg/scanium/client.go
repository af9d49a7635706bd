// Package scanium provides a client for the Scanium card OCR and company
// enrichment API. The wire schema is owned by the service and is not stable:
// response bodies are returned raw so callers can probe them tolerantly.
package scanium

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/syndy/cardscan/internal/resilience"
)

// Client defines the Scanium operations used by the scan workflow.
type Client interface {
	// UploadCard posts a card image for OCR and returns the transaction id
	// plus the raw initial extraction payload.
	UploadCard(ctx context.Context, image []byte, filename string) (*UploadResult, error)
	// GetTransaction fetches the latest server-side record for a transaction.
	// Idempotent and side-effect free; safe to call repeatedly.
	GetTransaction(ctx context.Context, transactionID string) ([]byte, error)
	// UploadSelfie attaches a selfie image to an existing transaction.
	UploadSelfie(ctx context.Context, transactionID string, image []byte) error
	// ScheduleMeeting triggers the downstream meeting invitation for a
	// transaction. Re-invocable on failure.
	ScheduleMeeting(ctx context.Context, transactionID string) error
}

// UploadResult holds the outcome of a card upload.
type UploadResult struct {
	TransactionID string
	// Raw is the full response body, including the initial extraction in
	// whatever shape the service chose to return it.
	Raw []byte
}

// The transaction id has been observed at several locations in upload
// responses, probed in this order.
var transactionIDPaths = []string{
	"transaction_id",
	"transactionId",
	"data.transaction_id",
	"data.id",
	"id",
}

// Option configures the Scanium client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry overrides the default retry configuration.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Scanium API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.scanium.io/v1",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) UploadCard(ctx context.Context, image []byte, filename string) (*UploadResult, error) {
	body, err := c.postImage(ctx, c.baseURL+"/cards", "card", image, filename, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scanium: upload card")
	}

	id := probeTransactionID(body)
	if id == "" {
		return nil, eris.New("scanium: upload response missing transaction id")
	}

	return &UploadResult{TransactionID: id, Raw: body}, nil
}

func (c *httpClient) GetTransaction(ctx context.Context, transactionID string) ([]byte, error) {
	url := fmt.Sprintf("%s/transactions/%s", c.baseURL, transactionID)

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		return c.do(req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scanium: get transaction %s", transactionID)
	}
	return body, nil
}

func (c *httpClient) UploadSelfie(ctx context.Context, transactionID string, image []byte) error {
	url := fmt.Sprintf("%s/transactions/%s/selfie", c.baseURL, transactionID)
	_, err := c.postImage(ctx, url, "selfie", image, "selfie.jpg", nil)
	if err != nil {
		return eris.Wrapf(err, "scanium: upload selfie for %s", transactionID)
	}
	return nil
}

func (c *httpClient) ScheduleMeeting(ctx context.Context, transactionID string) error {
	url := fmt.Sprintf("%s/transactions/%s/meeting", c.baseURL, transactionID)

	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return err
		}
		_, err = c.do(req)
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "scanium: schedule meeting for %s", transactionID)
	}
	return nil
}

// postImage uploads an image as a multipart form. Uploads are not retried:
// the service creates a transaction per accepted upload, and a retry after an
// ambiguous failure could create a duplicate.
func (c *httpClient) postImage(ctx context.Context, url, field string, image []byte, filename string, extra map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, eris.Wrap(err, "create form file")
	}
	if _, err := fw.Write(image); err != nil {
		return nil, eris.Wrap(err, "write form file")
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			return nil, eris.Wrapf(err, "write form field %s", k)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

// do sends a request with auth and rate limiting applied, returning the
// response body. Transient HTTP statuses are wrapped as transient errors so
// the retry layer can distinguish them.
func (c *httpClient) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode >= 400 {
		err := eris.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	return body, nil
}

func probeTransactionID(body []byte) string {
	for _, p := range transactionIDPaths {
		if v := gjson.GetBytes(body, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
