// Package fetch performs the single blocking page download behind each card
// and feed refresh. It never retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 2 << 20
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.9"
	acceptEncoding        = "gzip, deflate, br"
)

// Page is a successfully downloaded response body, converted to UTF-8.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Truncated   bool
}

// Text returns the body as a string.
func (p *Page) Text() string {
	return string(p.Body)
}

// Fetcher downloads pages subject to an outbound Filter and an optional
// per-host rate limit. Timeout and filter may be swapped at runtime.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBody      int64
	maxRedirects int
	limiter      *HostLimiter

	timeout atomic.Int64
	filter  atomic.Pointer[Filter]
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout bounds each fetch, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout.Store(int64(d))
		}
	}
}

// WithUserAgent overrides the desktop browser user agent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua = strings.TrimSpace(ua); ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps how much of the decoded body is kept.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithMaxRedirects limits how many redirects are followed.
func WithMaxRedirects(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRedirects = n
		}
	}
}

// WithFilter installs the outbound request filter.
func WithFilter(filter *Filter) Option {
	return func(f *Fetcher) {
		f.filter.Store(filter)
	}
}

// WithHostLimiter enables per-host request spacing.
func WithHostLimiter(l *HostLimiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.client.Transport = rt
	}
}

// New constructs a Fetcher with the supplied options.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{},
		userAgent:    DefaultUserAgent,
		maxBody:      DefaultMaxBodyBytes,
		maxRedirects: DefaultMaxRedirects,
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   f.checkDial,
	}
	f.client.Transport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
	}
	f.timeout.Store(int64(DefaultTimeout))
	for _, opt := range opts {
		opt(f)
	}
	f.client.CheckRedirect = f.checkRedirect
	return f
}

// SetTimeout changes the per-fetch timeout. Non-positive values are ignored.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout.Store(int64(d))
	}
}

// Timeout returns the current per-fetch timeout.
func (f *Fetcher) Timeout() time.Duration {
	return time.Duration(f.timeout.Load())
}

// SetFilter replaces the outbound request filter.
func (f *Fetcher) SetFilter(filter *Filter) {
	f.filter.Store(filter)
}

// Filter returns the active outbound request filter.
func (f *Fetcher) Filter() *Filter {
	return f.filter.Load()
}

// Fetch performs one GET of rawURL. Any outcome other than a 200 response
// whose body could be read is returned as *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || target.Host == "" {
		if err == nil {
			err = errors.New("missing host")
		}
		return nil, newError(KindInvalidURL, rawURL, err)
	}
	if err := f.Filter().Check(target); err != nil {
		kind := KindBlocked
		if errors.Is(err, ErrSchemeNotAllowed) {
			kind = KindInvalidURL
		}
		return nil, newError(kind, rawURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout())
	defer cancel()

	if err := f.limiter.Wait(ctx, target.Host); err != nil {
		return nil, newError(KindTransport, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, newError(KindInvalidURL, rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", defaultAcceptLanguage)
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := f.client.Do(req)
	if err != nil {
		var blocked *Error
		if errors.As(err, &blocked) {
			if blocked.URL == "" {
				blocked.URL = rawURL
			}
			return nil, blocked
		}
		return nil, newError(KindTransport, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &Error{Kind: KindStatus, StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, truncated, err := f.readBody(resp)
	if err != nil {
		return nil, newError(KindRead, rawURL, err)
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   truncated,
	}, nil
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, bool, error) {
	decoded, err := decompress(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, false, err
	}

	limited := &io.LimitedReader{R: decoded, N: f.maxBody + 1}
	utf8Body, err := toUTF8(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, false, err
	}
	body, err := io.ReadAll(utf8Body)
	if err != nil {
		return nil, false, err
	}

	truncated := limited.N <= 0
	if truncated && int64(len(body)) > f.maxBody {
		body = body[:runeBoundary(body, int(f.maxBody))]
	}
	return body, truncated, nil
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > f.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", f.maxRedirects)
	}
	if err := f.Filter().Check(req.URL); err != nil {
		return newError(KindBlocked, req.URL.String(), err)
	}
	return nil
}

// runeBoundary returns the largest cut <= n that does not split a UTF-8
// sequence in body. body must be longer than n.
func runeBoundary(body []byte, n int) int {
	for n > 0 && !utf8.RuneStart(body[n]) {
		n--
	}
	return n
}

// checkDial runs after DNS resolution, so hostnames that resolve to private
// addresses are caught as well as redirects to them.
func (f *Fetcher) checkDial(_, address string, _ syscall.RawConn) error {
	filter := f.Filter()
	if filter == nil || !filter.BlockPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if isPrivateAddr(addr) {
		return newError(KindBlocked, "", ErrPrivateAddress)
	}
	return nil
}
