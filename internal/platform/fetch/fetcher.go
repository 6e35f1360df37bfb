// Package fetch performs outbound HTTP GETs for ingestion. Redirects are followed manually so
// the security gate sees every hop, bodies are capped and requests share a rate limiter.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/neurobridge-content/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/netguard"
)

var (
	ErrTooManyRedirects = errors.New("fetch: too many redirects")
	ErrTooLarge         = errors.New("fetch: response exceeds size limit")
	ErrBlocked          = errors.New("fetch: url blocked by security gate")
)

type Config struct {
	Timeout       time.Duration
	MaxBytes      int64
	MaxRedirects  int
	UserAgent     string
	RatePerSecond float64
	Burst         int
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.UserAgent == "" {
		c.UserAgent = "neurobridge-content/1.0 (+ingest)"
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
}

// Response is a fully read, size-capped GET result.
type Response struct {
	URL         string
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
}

// Client is what ingestion code depends on.
type Client interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
	Open(ctx context.Context, method, rawURL string) (*http.Response, error)
}

type Fetcher struct {
	log       *logger.Logger
	cfg       Config
	validator netguard.Validator
	limiter   *rate.Limiter
	http      *http.Client
}

type Option func(*Fetcher)

// WithHTTPClient replaces the transport client. Redirect handling stays manual.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.http = c
		}
	}
}

func New(log *logger.Logger, validator netguard.Validator, cfg Config, opts ...Option) (*Fetcher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if validator == nil {
		return nil, fmt.Errorf("url validator required")
	}
	cfg.defaults()

	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: netguard.DialControl}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	f := &Fetcher{
		log:       log.With("service", "Fetcher"),
		cfg:       cfg,
		validator: validator,
		http:      &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
	if cfg.RatePerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	for _, opt := range opts {
		opt(f)
	}
	f.http.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return f, nil
}

// Get fetches rawURL and reads at most MaxBytes of the body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := f.Open(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, f.cfg.MaxBytes)
	}
	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Open performs the request, following redirects by hand and validating every hop. The
// caller owns the returned body. Non-2xx final responses become *httpx.StatusError.
func (f *Fetcher) Open(ctx context.Context, method, rawURL string) (*http.Response, error) {
	ctx = ctxutil.Default(ctx)
	current := strings.TrimSpace(rawURL)
	for hop := 0; ; hop++ {
		if err := f.validator.Validate(ctx, current); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBlocked, err)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, current, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "*/*")

		resp, err := f.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, current, err)
		}

		if isRedirect(resp.StatusCode) {
			loc := strings.TrimSpace(resp.Header.Get("Location"))
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
			if loc == "" {
				return nil, fmt.Errorf("redirect %d without location from %s", resp.StatusCode, current)
			}
			if hop >= f.cfg.MaxRedirects {
				return nil, fmt.Errorf("%w (%d)", ErrTooManyRedirects, f.cfg.MaxRedirects)
			}
			next, err := resolveLocation(current, loc)
			if err != nil {
				return nil, err
			}
			f.log.Debug("following redirect", "from", current, "to", next, "hop", hop+1)
			current = next
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, &httpx.StatusError{URL: current, StatusCode: resp.StatusCode}
		}
		return resp, nil
	}
}

// MaxBytes is the configured body ceiling.
func (f *Fetcher) MaxBytes() int64 { return f.cfg.MaxBytes }

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func resolveLocation(base, loc string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	l, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("parse redirect location: %w", err)
	}
	return b.ResolveReference(l).String(), nil
}
