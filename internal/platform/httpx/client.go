// Package httpx builds the outbound HTTP clients. Every request leaves the
// process through one of these clients so that timeouts and tracing are
// uniform.
package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout       = 5 * time.Second
	defaultUploadHeaderTimeout = 60 * time.Second

	maxDialTimeout   = 3 * time.Second
	maxHeaderTimeout = 3 * time.Second

	idleConnTimeout       = 30 * time.Second
	expectContinueTimeout = time.Second
	maxIdleConns          = 16
	maxIdleConnsPerHost   = 4
)

// NewClient returns a client for liveness probes and small API calls. The
// whole exchange is bounded by timeout; dial and header waits are capped
// further so a dead host fails fast.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(min(timeout, maxDialTimeout), min(timeout, maxHeaderTimeout)),
	}
}

// NewUploadClient returns a client for streaming file uploads. There is no
// overall deadline since bodies may be large; headerTimeout bounds the wait
// for the backend's verdict once the body has been sent.
func NewUploadClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = defaultUploadHeaderTimeout
	}
	return &http.Client{Transport: newTransport(maxDialTimeout, headerTimeout)}
}

// Instrument wraps the client transport in OpenTelemetry client spans named
// "<operation> <METHOD>". c is modified in place and returned.
func Instrument(c *http.Client, operation string) *http.Client {
	base := c.Transport
	if base == nil {
		base = newTransport(maxDialTimeout, maxHeaderTimeout)
	}
	c.Transport = otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)
	return c
}

func newTransport(dialTimeout, headerTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
	}
}
