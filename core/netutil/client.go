package netutil

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ClientOptions tunes NewHTTPClient; zero values select defaults.
type ClientOptions struct {
	// Timeout bounds a whole call including retries. Default 30s.
	Timeout time.Duration
	// ResponseTimeout bounds the wait for response headers. Default 5s.
	// Long polling callers must set it above their poll timeout.
	ResponseTimeout time.Duration
	// RetryAttempts after the first try. Default 3; negative disables retries.
	RetryAttempts int
	// RetryBackoff grows linearly with the attempt number. Default 2s.
	RetryBackoff time.Duration
	// RetryStatus also retries 429 and gateway 5xx responses when the
	// request body can be replayed.
	RetryStatus bool
	// Base replaces the default transport.
	Base http.RoundTripper
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = 5 * time.Second
	}
	switch {
	case o.RetryAttempts < 0:
		o.RetryAttempts = 0
	case o.RetryAttempts == 0:
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

// NewHTTPClient returns a client whose transport retries transient failures.
func NewHTTPClient(opts ClientOptions) *http.Client {
	opts = opts.withDefaults()
	base := opts.Base
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: opts.ResponseTimeout,
			ExpectContinueTimeout: time.Second,
		}
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &retryTransport{
			next:   base,
			tries:  opts.RetryAttempts + 1,
			step:   opts.RetryBackoff,
			status: opts.RetryStatus,
		},
	}
}

type retryTransport struct {
	next   http.RoundTripper
	tries  int
	step   time.Duration
	status bool
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	var last error
	for n := 1; ; n++ {
		r, err := rewind(req, n)
		if err != nil {
			return nil, err
		}
		resp, err := t.next.RoundTrip(r)
		final := n >= t.tries || !replayable
		switch {
		case err != nil:
			if final || !ShouldRetry(err) {
				return nil, err
			}
			last = err
		case t.status && ShouldRetryStatus(resp.StatusCode) && !final:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			last = &StatusError{Code: resp.StatusCode}
		default:
			return resp, nil
		}

		wait := time.NewTimer(t.step * time.Duration(n))
		select {
		case <-req.Context().Done():
			wait.Stop()
			return nil, fmt.Errorf("%w (last: %v)", req.Context().Err(), last)
		case <-wait.C:
		}
	}
}

// rewind returns req for the first attempt and a clone with a fresh body
// for later ones.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

// StatusError reports a retried HTTP status that never recovered.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d %s", e.Code, http.StatusText(e.Code))
}
