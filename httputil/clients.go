package httputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"listing_harvester/config"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

// Response is a completed fetch. FinalURL is the URL after redirects.
type Response struct {
	Status   int
	Body     string
	FinalURL string
}

// Client is the outbound transport for target pages. It follows redirects,
// goes through the configured proxy, and retries transient failures.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(proxyCfg *config.ProxyConfig, httpCfg *config.HTTPConfig) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   false,
		TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
		MaxIdleConnsPerHost: 5,
		MaxConnsPerHost:     10,
	}
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := resty.New()
	client.SetTransport(transport)
	client.SetTimeout(httpCfg.Timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetHeader("user-agent", httpCfg.UserAgent)
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("cache-control", "no-cache")

	client.SetRetryCount(httpCfg.Retries)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(3 * time.Second)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		code := res.StatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	})

	c := &Client{http: client}
	if httpCfg.RatePerSec > 0 {
		burst := int(httpCfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(httpCfg.RatePerSec), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return c.limiter.Wait(req.Context())
		})
	}
	return c
}

// Fetch GETs rawURL. A non-2xx response is returned together with a
// *StatusError so callers can still inspect the body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	res, err := c.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	out := &Response{
		Status:   res.StatusCode(),
		Body:     string(res.Body()),
		FinalURL: rawURL,
	}
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		out.FinalURL = raw.Request.URL.String()
	}
	if out.Status < 200 || out.Status > 299 {
		return out, &StatusError{Status: out.Status, URL: rawURL}
	}
	return out, nil
}

// Canonicalize resolves rawURL without its query through redirects, then
// puts the original query back on the final URL. On failure the input is
// returned unchanged along with the error.
func (c *Client) Canonicalize(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	bare := *u
	bare.RawQuery = ""
	bare.Fragment = ""

	res, err := c.Fetch(ctx, bare.String())
	if err != nil {
		return rawURL, err
	}
	return ReattachQuery(res.FinalURL, rawURL), nil
}

// ReattachQuery merges original's query into canonical's. Where both carry
// a key, original's values win.
func ReattachQuery(canonical, original string) string {
	c, err := url.Parse(canonical)
	if err != nil {
		return original
	}
	o, err := url.Parse(original)
	if err != nil {
		return canonical
	}

	merged := c.Query()
	for k, vals := range o.Query() {
		merged[k] = vals
	}
	c.RawQuery = merged.Encode()
	return c.String()
}
