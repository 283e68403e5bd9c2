package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/markis/convstream/internal/config"
	"github.com/markis/convstream/internal/stream"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/time/rate"
)

// Client talks to the novel authoring backend.
type Client struct {
	baseURL   string
	timeout   time.Duration
	chunkSize int
	encoding  encoding.Encoding
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

var (
	transport     *http.Transport
	transportOnce sync.Once
)

// sharedTransport returns a singleton transport so connections are reused
// across clients.
func sharedTransport() *http.Transport {
	transportOnce.Do(func() {
		transport = &http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			MaxIdleConns:       100,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: false,
			DisableKeepAlives:  false,
			ForceAttemptHTTP2:  true,
		}

		// Add context-aware dial options
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	})
	return transport
}

// New builds a Client from the loaded configuration.
func New(cfg config.Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := stream.LookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		chunkSize: cfg.ChunkSize,
		encoding:  enc,
		// Streams can run for minutes; per-call deadlines come from contexts.
		http:    &http.Client{Transport: sharedTransport()},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// newRequest creates a request with the common headers and waits for the
// pacing limiter.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and turns transport failures and non-2xx statuses into
// *stream.TransportError. The caller owns the returned body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &stream.TransportError{Err: err}
	}

	c.logger.Debug("response received",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", req.Header.Get("X-Request-Id")),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer c.closeBody(resp.Body)
		return nil, stream.NewTransportError(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &stream.TransportError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        stream.ErrMissingBody,
		}
	}
	return resp, nil
}

func (c *Client) closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		c.logger.Warn("failed to close response body", zap.Error(err))
	}
}
