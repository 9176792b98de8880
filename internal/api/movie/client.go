package movie

import (
	"errors"
	"net/http"

	"github.com/lonelymovie/lonelymovie/internal/util"
)

var (
	ErrNotConfigured = errors.New("client not configured")
	ErrNoResults     = errors.New("no results")
)

type clientOptions struct {
	client  *http.Client
	baseURL string
}

// ClientOption overrides a client's transport or endpoint
type ClientOption func(*clientOptions)

// WithHTTPClient replaces the shared HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.client = c }
}

// WithBaseURL points a client at another endpoint, such as a test server
func WithBaseURL(u string) ClientOption {
	return func(o *clientOptions) { o.baseURL = u }
}

func applyOptions(baseURL string, opts []ClientOption) clientOptions {
	o := clientOptions{client: util.GetSharedClient(), baseURL: baseURL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
