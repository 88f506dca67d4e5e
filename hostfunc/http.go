package hostfunc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 2 << 20 // 2MB
	DefaultRequestTimeout = 10 * time.Second
)

// AllowAnyHost in AllowedHosts disables the host allowlist.
const AllowAnyHost = "*"

const maxRedirects = 10

var errRedirectNotAllowed = errors.New("redirect target not allowed")

type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	// RateLimit is requests per second per caller. Zero means unlimited.
	RateLimit float64
	RateBurst int
}

// HTTP performs outbound requests on behalf of modules. It never returns
// an error: every failure is folded into an HTTPResponse status.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	allowed := make([]string, 0, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		if h = strings.TrimSpace(h); h != "" {
			allowed = append(allowed, normalizeHost(h))
		}
	}
	cfg.AllowedHosts = allowed

	h := &HTTP{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
	h.client = &http.Client{
		Timeout:       cfg.RequestTimeout,
		CheckRedirect: h.checkRedirect,
	}
	return h
}

// checkRedirect applies the scheme and host rules to every hop.
func (h *HTTP) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("%w: scheme %s", errRedirectNotAllowed, req.URL.Scheme)
	}
	if host := normalizeHost(req.URL.Hostname()); !h.isHostAllowed(host) {
		return fmt.Errorf("%w: %s", errRedirectNotAllowed, host)
	}
	return nil
}

// Do sends req for caller. caller only scopes rate limiting.
func (h *HTTP) Do(ctx context.Context, caller string, req HTTPRequest) HTTPResponse {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	switch method {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
	default:
		return failed(StatusInvalidRequest, fmt.Sprintf("unsupported method: %s", method))
	}

	if req.URL == "" {
		return failed(StatusInvalidRequest, "url required")
	}

	if len(req.URL) > h.cfg.MaxURLLength {
		return failed(StatusInvalidRequest, "url exceeds max length")
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return failed(StatusInvalidRequest, "invalid url")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return failed(StatusInvalidRequest, "scheme must be http or https")
	}

	if len(h.cfg.AllowedHosts) == 0 {
		return failed(StatusHostNotAllowed, "http not enabled")
	}

	host := normalizeHost(parsed.Hostname())
	if !h.isHostAllowed(host) {
		return failed(StatusHostNotAllowed, fmt.Sprintf("host not allowed: %s", host))
	}

	if int64(len(req.Body)) > h.cfg.MaxBodySize {
		return failed(StatusInvalidRequest, "request body exceeds max size")
	}

	if !h.allow(caller) {
		return failed(StatusRateLimited, "rate limit exceeded")
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return failed(StatusInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	for _, hdr := range req.Headers {
		httpReq.Header.Add(hdr.Name, hdr.Value)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, errRedirectNotAllowed) {
			return failed(StatusHostNotAllowed, err.Error())
		}
		if isTimeout(err) {
			return failed(StatusTimeout, fmt.Sprintf("request timed out: %v", err))
		}
		return failed(StatusTransportFailure, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		if isTimeout(err) {
			return failed(StatusTimeout, fmt.Sprintf("failed to read response: %v", err))
		}
		return failed(StatusTransportFailure, fmt.Sprintf("failed to read response: %v", err))
	}

	return HTTPResponse{
		StatusCode: resp.StatusCode,
		Reason:     http.StatusText(resp.StatusCode),
		Headers:    orderedHeaders(resp.Header),
		Body:       respBody,
	}
}

func (h *HTTP) isHostAllowed(host string) bool {
	host = normalizeHost(host)
	for _, allowed := range h.cfg.AllowedHosts {
		if allowed == AllowAnyHost || host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (h *HTTP) allow(caller string) bool {
	if h.cfg.RateLimit <= 0 {
		return true
	}
	h.mu.Lock()
	lim, ok := h.limiters[caller]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateBurst)
		h.limiters[caller] = lim
	}
	h.mu.Unlock()
	return lim.Allow()
}

// normalizeHost lowercases host names and rewrites IP literals to their
// canonical form so "::ffff:7f00:1" and "127.0.0.1" compare equal.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func orderedHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Header, 0, len(names))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}

func failed(status int, reason string) HTTPResponse {
	return HTTPResponse{
		StatusCode: status,
		Reason:     reason,
		Body:       []byte(reason),
	}
}
