// Package fetch provides clients for the external HTTP services the engine
// depends on: the swap quote aggregator and the yield opportunity catalog.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/circuitbreaker"
	"github.com/yourorg/swell-ops-ea/internal/errs"
)

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// NewHTTPClient returns a retrying client whose every attempt is bounded by
// timeout; zero means no per-attempt bound.
func NewHTTPClient(timeout time.Duration) *http.Client {
	rc := newRetryClient()
	rc.HTTPClient.Timeout = timeout
	return StandardClient(rc)
}

// upstream bundles an HTTP client with the breaker guarding one service.
type upstream struct {
	name       string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func newUpstream(name string, httpClient *http.Client, breaker *circuitbreaker.CircuitBreaker) upstream {
	if httpClient == nil {
		httpClient = StandardClient(newRetryClient())
	}
	if breaker == nil {
		breaker = circuitbreaker.New(name, circuitbreaker.Thresholds{})
	}
	return upstream{name: name, httpClient: httpClient, breaker: breaker}
}

// getJSON performs a GET and decodes a 2xx body into out. Transport errors
// and 5xx answers count against the breaker; 4xx answers do not.
func (u upstream) getJSON(ctx context.Context, op, rawURL string, out interface{}) error {
	if err := u.breaker.Allow(); err != nil {
		return errs.Wrap(errs.KindUpstreamUnavailable, err, "%s is unavailable", u.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "error creating request")
	}
	req.Header.Set("Accept", "application/json")

	logrus.WithFields(logrus.Fields{"upstream": u.name, "op": op}).Debugf("GET %s", rawURL)
	resp, err := u.httpClient.Do(req)
	if err != nil {
		u.breaker.RecordFailure(err.Error())
		return errs.Wrap(errs.KindUpstreamUnavailable, err, "error fetching data from %s", u.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if resp.StatusCode >= 500 {
			u.breaker.RecordFailure(reason)
		} else {
			u.breaker.RecordSuccess()
		}
		return errs.New(errs.KindUpstreamUnavailable, "%s API error: %s, body: %s",
			u.name, reason, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		u.breaker.RecordFailure("undecodable response")
		return errs.Wrap(errs.KindUpstreamUnavailable, err, "error decoding %s response", u.name)
	}
	u.breaker.RecordSuccess()
	return nil
}

// flexFloat accepts a JSON number, a numeric string, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts a JSON string or a bare number, as base-unit amounts
// come back in either form.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(raw)
	return nil
}
