// Package httpclient provides the outbound HTTP client for the payroll API.
//
// Every request is pinned to the configured API host and scheme, paced by a
// token-bucket limiter, and carries the current bearer token. Pagination
// cursors and hypermedia links come from the remote side, so they are
// validated before being followed.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/paysync/errors"
)

// TokenSource supplies the current bearer token for each outbound call
type TokenSource interface {
	AccessToken() string
}

// Options customizes the client
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unpaced
	MaxRedirects      *int    // Default: 10
	BlockPrivateIP    bool    // Refuse private and loopback targets
	UserAgent         string
}

// Client wraps http.Client with host pinning, pacing and bearer auth
type Client struct {
	*http.Client
	base           *url.URL
	tokens         TokenSource
	limiter        *rate.Limiter
	blockPrivateIP bool
	maxRedirects   int
	userAgent      string
}

// New creates a client pinned to baseURL's scheme and host.
// tokens may be nil for unauthenticated calls such as the token exchange itself.
func New(baseURL string, tokens TokenSource, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}
	scheme := strings.ToLower(base.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, errors.Newf("scheme %q not allowed (allowed: [http https])", base.Scheme)
	}
	if base.Hostname() == "" {
		return nil, errors.New("base URL missing hostname")
	}

	maxRedirects := 10
	if opts.MaxRedirects != nil {
		maxRedirects = *opts.MaxRedirects
	}

	c := &Client{
		Client:         &http.Client{Timeout: opts.Timeout},
		base:           base,
		tokens:         tokens,
		blockPrivateIP: opts.BlockPrivateIP,
		maxRedirects:   maxRedirects,
		userAgent:      opts.UserAgent,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	// Redirects must stay on the API host
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if c.blockPrivateIP {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}

		c.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}

				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}

				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}

				return dialer.DialContext(ctx, network, addr)
			},
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return c, nil
}

// BaseURL returns the API root without a trailing slash
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.base.String(), "/")
}

// validateURL checks that u targets the pinned API host
func (c *Client) validateURL(u *url.URL) error {
	if !strings.EqualFold(u.Scheme, c.base.Scheme) {
		return errors.Newf("scheme %q does not match API scheme %q", u.Scheme, c.base.Scheme)
	}

	// Could be credential injection or URL confusion: http://evil.com@api/
	if u.User != nil {
		return errors.New("URL contains userinfo")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if !strings.EqualFold(u.Host, c.base.Host) {
		return errors.Newf("host %q is not the API host %q", u.Host, c.base.Host)
	}

	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}

	return nil
}

// ValidateURL validates a URL string before creating a request
func (c *Client) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}

	if err := c.validateURL(u); err != nil {
		return nil, err
	}

	return u, nil
}

// Get issues an authenticated GET against the API
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", urlStr)
	}
	req.Header.Set("Accept", "application/json")
	return c.Do(req)
}

// Do executes a request after host validation, pacing and token injection
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	return c.Client.Do(req)
}

// isPrivateIP checks if an IP is in private/special use ranges
func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.IsPrivate() || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() ||
			ip4.IsUnspecified() || ip4.IsMulticast() || ip4[0] == 0 || ip4[0] >= 240
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsMulticast() || ip.IsUnspecified()
}

// isLocalhost checks for localhost variants
func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
