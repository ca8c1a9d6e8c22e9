// Package services is the HTTP client for the tunedeck backend API.
//
// [Client] sends every authenticated call with a bearer token taken from a
// [TokenProvider] through an [oauth2.Transport]. Responses are decoded into
// package models types and validated before they are returned.
package services

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/shared"
	"golang.org/x/oauth2"
)

const (
	loginPath     = "/server/api/login"
	validatePath  = "/server/api/validate"
	playlistsPath = "/api/playlists"
	tracksPath    = "/api/tracks"
	albumsPath    = "/api/albums"
	artistsPath   = "/api/artists"
)

// TokenProvider exposes the current bearer token. [credentials.Store] implements it.
type TokenProvider interface {
	Current() (string, bool)
	TokenSource() oauth2.TokenSource
}

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Method string
	Path   string
	Code   int
	Status string
	Body   []byte
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Status, msg)
}

// IsServerError reports whether the backend failed (5xx) rather than rejected the request.
func (e *HTTPError) IsServerError() bool {
	return e.Code >= 500
}

// Unwrap maps the status to a sentinel so callers can use errors.Is.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized:
		return shared.ErrInvalidToken
	case e.IsServerError():
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// AsHTTPError extracts an [HTTPError] from err.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// Client talks to the backend REST API.
type Client struct {
	baseURL    *url.URL
	tokens     TokenProvider
	authClient *http.Client
	anonClient *http.Client
	logger     *log.Logger
}

// ClientOption configures a [Client].
type ClientOption func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    *log.Logger
}

// WithTransport sets the base transport under the bearer token transport.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// WithTimeout sets a per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, tokens TokenProvider, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid base URL %q", shared.ErrInvalidConfig, baseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token provider is required", shared.ErrInvalidConfig)
	}

	o := clientOptions{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = shared.NewLogger(nil)
	}

	return &Client{
		baseURL: u,
		tokens:  tokens,
		authClient: &http.Client{
			Transport: &oauth2.Transport{Source: tokens.TokenSource(), Base: o.transport},
			Timeout:   o.timeout,
		},
		anonClient: &http.Client{
			Transport: o.transport,
			Timeout:   o.timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: o.logger,
	}, nil
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// resolve joins path and query onto the base URL.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// requireToken is the precondition for every authenticated call.
func (c *Client) requireToken() error {
	if _, ok := c.tokens.Current(); !ok {
		return shared.ErrNotAuthenticated
	}
	return nil
}
