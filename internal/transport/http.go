package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/lexicrawl/internal/config"
)

// maxRedirects stops redirect loops while still following normal redirects.
const maxRedirects = 10

// HTTPOptions configures the *http.Client built by NewHTTPClient.
type HTTPOptions struct {
	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// ProxyURL routes requests through a socks5://, socks5h://, http:// or
	// https:// proxy. Empty means a direct connection.
	ProxyURL string

	// Sites supplies per-host cookies and headers. Nil disables injection.
	Sites *config.File
}

// NewHTTPClient creates the HTTP client used by Client.
//
// The client keeps a cookie jar so that session cookies set by the lexicon
// site survive between listing pages.
func NewHTTPClient(opts HTTPOptions) (*http.Client, error) {
	base := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if opts.ProxyURL != "" {
		if err := configureProxy(base, opts.ProxyURL); err != nil {
			return nil, err
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = base
	if opts.Sites != nil {
		rt = &headerInjectingTransport{base: base, sites: opts.Sites}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", ErrTooManyRedirects, maxRedirects)
			}
			return nil
		},
	}, nil
}

// configureProxy wires rawURL into t. SOCKS5 proxies go through a
// golang.org/x/net/proxy dialer, HTTP proxies through t.Proxy.
func configureProxy(t *http.Transport, rawURL string) error {
	if !config.IsSupportedProxy(rawURL) {
		return config.NewError("proxy", config.ErrInvalidProxy)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return config.NewError("proxy", fmt.Errorf("%w: %w", config.ErrInvalidProxy, err))
	}

	switch u.Scheme {
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
		return nil
	}

	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		t.DialContext = cd.DialContext
	} else {
		t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return nil
}

// headerInjectingTransport wraps an http.RoundTripper to inject the cookie
// and headers configured for the request's host.
type headerInjectingTransport struct {
	base  http.RoundTripper
	sites *config.File
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	site := t.sites.GetSiteConfig(req.URL.Hostname())
	if site.Cookie == "" && len(site.Headers) == 0 {
		return t.base.RoundTrip(req)
	}

	// Clone the request to avoid modifying the original
	clone := req.Clone(req.Context())

	if site.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+site.Cookie)
		} else {
			clone.Header.Set("Cookie", site.Cookie)
		}
	}

	for key, value := range site.Headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
