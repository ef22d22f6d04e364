// Package portal talks to the e-invoicing portal REST API: client
// credential login, received-document search and document downloads.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/resilience"
)

const (
	defaultAPIURL      = "https://api.invoicing.eta.gov.eg"
	defaultIdentityURL = "https://id.eta.gov.eg"

	// tokenSkew renews a token this long before it expires.
	tokenSkew = 60 * time.Second

	searchPath = "/api/v1.0/documents/search"
)

// Client defines the portal operations used by the download stage.
type Client interface {
	Authenticate(ctx context.Context) error
	SearchReceived(ctx context.Context, rin string, day time.Time) ([]DocumentSummary, error)
	RawDocument(ctx context.Context, rin, uuid string) ([]byte, error)
	DocumentPDF(ctx context.Context, rin, uuid string) ([]byte, error)
}

// DocumentSummary is one row of a received-documents search.
type DocumentSummary struct {
	UUID             string  `json:"uuid"`
	InternalID       string  `json:"internalId"`
	TypeName         string  `json:"typeName"`
	IssuerName       string  `json:"issuerName"`
	IssuerID         string  `json:"issuerId"`
	ReceiverID       string  `json:"receiverId"`
	DateTimeIssued   string  `json:"dateTimeIssued"`
	DateTimeReceived string  `json:"dateTimeReceived"`
	Status           string  `json:"status"`
	Total            float64 `json:"total"`
}

// ReceivedAt parses DateTimeReceived. The portal sends UTC timestamps with
// or without a zone suffix.
func (d DocumentSummary) ReceivedAt() (time.Time, error) {
	s := strings.TrimSpace(d.DateTimeReceived)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("portal: unparseable dateTimeReceived %q", d.DateTimeReceived)
}

type searchResponse struct {
	Result   []DocumentSummary `json:"result"`
	Metadata struct {
		ContinuationToken     string `json:"continuationToken"`
		RemainingRecordsCount int    `json:"remainingRecordsCount"`
	} `json:"metadata"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithIdentityURL overrides the identity service base URL.
func WithIdentityURL(u string) Option {
	return func(c *httpClient) { c.identityURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithLimiter overrides the request rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

// WithBreaker overrides the circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) { c.breaker = cb }
}

// httpClient implements Client using net/http.
type httpClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	identityURL  string
	pageSize     int

	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker

	mu      sync.Mutex
	token   string
	expires time.Time
	nowFunc func() time.Time
}

// NewClient creates a portal client from configuration. Zero values fall
// back to the public portal defaults.
func NewClient(cfg config.PortalConfig, opts ...Option) Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	retry := resilience.FromConfig(cfg.Retry)
	retry.OnRetry = resilience.RetryLogger("portal", "request")
	breaker := resilience.FromBreakerConfig(cfg.Breaker)
	breaker.OnStateChange = resilience.BreakerLogger("portal")

	c := &httpClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      defaultAPIURL,
		identityURL:  defaultIdentityURL,
		pageSize:     pageSize,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(breaker),
		nowFunc: time.Now,
	}
	if cfg.APIURL != "" {
		c.baseURL = strings.TrimRight(cfg.APIURL, "/")
	}
	if cfg.IdentityURL != "" {
		c.identityURL = strings.TrimRight(cfg.IdentityURL, "/")
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Authenticate(ctx context.Context) error {
	_, err := c.accessToken(ctx)
	return err
}

func (c *httpClient) SearchReceived(ctx context.Context, rin string, day time.Time) ([]DocumentSummary, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	var docs []DocumentSummary
	continuation := ""
	for {
		q := url.Values{}
		q.Set("submissionDateFrom", from.UTC().Format("2006-01-02T15:04:05Z"))
		q.Set("submissionDateTo", to.UTC().Format("2006-01-02T15:04:05Z"))
		q.Set("direction", "Received")
		q.Set("pageSize", strconv.Itoa(c.pageSize))
		if continuation != "" {
			q.Set("continuationToken", continuation)
		}

		body, err := c.get(ctx, rin, searchPath+"?"+q.Encode(), "application/json")
		if err != nil {
			return nil, eris.Wrap(err, "portal: search received documents")
		}
		var page searchResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, eris.Wrap(err, "portal: decode search response")
		}
		docs = append(docs, page.Result...)

		next := page.Metadata.ContinuationToken
		if next == "" || next == continuation || page.Metadata.RemainingRecordsCount == 0 || len(page.Result) == 0 {
			return docs, nil
		}
		continuation = next
	}
}

func (c *httpClient) RawDocument(ctx context.Context, rin, uuid string) ([]byte, error) {
	body, err := c.get(ctx, rin, fmt.Sprintf("/api/v1.0/documents/%s/raw", url.PathEscape(uuid)), "application/json")
	if err != nil {
		return nil, eris.Wrapf(err, "portal: raw document %s", uuid)
	}
	return body, nil
}

func (c *httpClient) DocumentPDF(ctx context.Context, rin, uuid string) ([]byte, error) {
	body, err := c.get(ctx, rin, fmt.Sprintf("/api/v1.0/documents/%s/pdf", url.PathEscape(uuid)), "application/pdf")
	if err != nil {
		return nil, eris.Wrapf(err, "portal: document pdf %s", uuid)
	}
	return body, nil
}

// get issues an authenticated GET through the breaker, the limiter and the
// retry policy.
func (c *httpClient) get(ctx context.Context, rin, path, accept string) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "rate limit wait")
			}
			token, err := c.accessToken(ctx)
			if err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return nil, eris.Wrap(err, "create request")
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Accept", accept)
			if rin != "" {
				req.Header.Set("onbehalfof", rin)
			}

			body, status, err := c.do(req)
			if err != nil {
				return nil, err
			}
			if status == http.StatusUnauthorized {
				c.invalidate()
				return nil, resilience.NewTransientError(eris.New("token rejected"), status)
			}
			if status < 200 || status >= 300 {
				return nil, resilience.StatusError("request", status, string(body))
			}
			return body, nil
		})
	})
}

func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "read response body")
	}
	return data, resp.StatusCode, nil
}

// accessToken returns the cached token, logging in again when it is
// missing or about to expire.
func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.nowFunc().Before(c.expires.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", "InvoicingAPI")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.identityURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "portal: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := c.do(req)
	if err != nil {
		return "", eris.Wrap(err, "portal: token")
	}
	if status != http.StatusOK {
		return "", resilience.StatusError("portal: token", status, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", eris.Wrap(err, "portal: decode token")
	}
	if tok.AccessToken == "" {
		return "", eris.New("portal: token response has no access_token")
	}
	c.token = tok.AccessToken
	c.expires = c.nowFunc().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *httpClient) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
