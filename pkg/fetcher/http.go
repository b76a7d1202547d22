package fetcher

import (
	"bytes"
	"context"
	cryptotls "crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/security/tls"
	"mercator-hq/policysync/pkg/telemetry/tracing"
)

// HTTPProviderName is the registry name of the http provider.
const HTTPProviderName = "http"

// maxErrorBody bounds how much of an error response is kept in
// HTTPStatusError.
const maxErrorBody = 512

var defaultHTTPClient = &http.Client{
	Transport: newTransport(nil),
	Timeout:   config.DefaultHTTPTimeout,
}

func newTransport(tlsCfg *cryptotls.Config) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSClientConfig:     tlsCfg,
	}
}

// NewHTTPClient builds the pooled client of the http provider from cfg.
// Client certificates are reloaded until ctx is done.
func NewHTTPClient(ctx context.Context, cfg config.HTTPClientConfig) (*http.Client, error) {
	tlsCfg, err := tls.NewClientConfig(ctx, cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("http provider tls: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &http.Client{Transport: newTransport(tlsCfg), Timeout: timeout}, nil
}

// SecretResolver expands ${secret:name} references.
type SecretResolver interface {
	Resolve(ctx context.Context, s string) (string, error)
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*HTTPProvider)

// WithSecretResolver expands secret references in header values before
// each request.
func WithSecretResolver(r SecretResolver) HTTPOption {
	return func(p *HTTPProvider) { p.secrets = r }
}

// HTTPProvider fetches a URL over HTTP.
//
// Recognized config keys:
//
//	method   HTTP method, default GET
//	headers  map of header values
//	data     request body; strings and byte slices are sent as is,
//	         anything else is JSON encoded
//	is_json  decode the response as JSON even without a JSON content type
//
// JSON responses are decoded into any; other responses are returned as a
// string.
type HTTPProvider struct {
	client  *http.Client
	url     string
	method  string
	headers map[string]string
	body    []byte
	isJSON  bool
	secrets SecretResolver
}

// NewHTTPProvider is the Factory of the http provider. It uses a shared
// pooled client.
func NewHTTPProvider(event *FetchEvent) (Provider, error) {
	return newHTTPProvider(defaultHTTPClient, event)
}

// HTTPFactory returns a Factory using client for every request.
func HTTPFactory(client *http.Client, opts ...HTTPOption) Factory {
	return func(event *FetchEvent) (Provider, error) {
		p, err := newHTTPProvider(client, event)
		if err != nil {
			return nil, err
		}
		for _, opt := range opts {
			opt(p)
		}
		return p, nil
	}
}

func newHTTPProvider(client *http.Client, event *FetchEvent) (*HTTPProvider, error) {
	if event.URL == "" {
		return nil, fmt.Errorf("http provider: url cannot be empty")
	}

	p := &HTTPProvider{
		client:  client,
		url:     event.URL,
		method:  http.MethodGet,
		headers: make(map[string]string),
	}

	if m, ok := event.Config["method"].(string); ok && m != "" {
		p.method = strings.ToUpper(m)
	}
	if v, ok := event.Config["is_json"].(bool); ok {
		p.isJSON = v
	}

	switch h := event.Config["headers"].(type) {
	case nil:
	case map[string]string:
		for k, v := range h {
			p.headers[k] = v
		}
	case map[string]any:
		for k, v := range h {
			p.headers[k] = fmt.Sprint(v)
		}
	default:
		return nil, fmt.Errorf("http provider: headers must be a mapping, got %T", h)
	}

	switch d := event.Config["data"].(type) {
	case nil:
	case string:
		p.body = []byte(d)
	case []byte:
		p.body = d
	default:
		body, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("http provider: failed to encode request body: %w", err)
		}
		p.body = body
		if _, ok := p.headers["Content-Type"]; !ok {
			p.headers["Content-Type"] = "application/json"
		}
	}

	return p, nil
}

// Fetch performs one request. Client errors other than 408 and 429 are
// permanent; a 429 with Retry-After waits the advertised delay before the
// next attempt.
func (p *HTTPProvider) Fetch(ctx context.Context) (any, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	for k, v := range p.headers {
		if p.secrets != nil {
			if v, err = p.secrets.Resolve(ctx, v); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("header %s: %w", k, err))
			}
		}
		req.Header.Set(k, v)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.method, p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &HTTPStatusError{
			URL:        p.url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
		return nil, classifyStatus(statusErr, resp.Header.Get("Retry-After"))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", p.url, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !p.isJSON && !isJSONContentType(resp.Header.Get("Content-Type")) {
		return string(data), nil
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid JSON from %s: %w", p.url, err))
	}
	return decoded, nil
}

// Process returns the fetched data unchanged.
func (p *HTTPProvider) Process(_ context.Context, data any) (any, error) {
	return data, nil
}

func classifyStatus(err *HTTPStatusError, retryAfter string) error {
	switch {
	case err.StatusCode == http.StatusTooManyRequests:
		if secs := parseRetryAfter(retryAfter); secs > 0 {
			return errors.Join(err, backoff.RetryAfter(secs))
		}
		return err
	case err.StatusCode == http.StatusRequestTimeout:
		return err
	case err.StatusCode >= 400 && err.StatusCode < 500:
		return backoff.Permanent(err)
	default:
		return err
	}
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(value string) int {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

func isJSONContentType(value string) bool {
	if value == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
