package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/yungbote/neurobridge-content/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/netguard"
)

// testGate lets the httptest loopback server through and sends every other host to the real
// gate, recording each validated URL.
type testGate struct {
	mu      sync.Mutex
	allowed string
	inner   *netguard.Gate
	seen    []string
}

func (g *testGate) Validate(ctx context.Context, rawURL string) error {
	g.mu.Lock()
	g.seen = append(g.seen, rawURL)
	g.mu.Unlock()
	u, err := url.Parse(rawURL)
	if err == nil && u.Host == g.allowed {
		return nil
	}
	return g.inner.Validate(ctx, rawURL)
}

type noResolver struct{}

func (noResolver) LookupIPAddr(context.Context, string) ([]net.IPAddr, error) {
	return nil, errors.New("lookups disabled in tests")
}

func newTestFetcher(t *testing.T, srv *httptest.Server, cfg Config) (*Fetcher, *testGate) {
	t.Helper()
	u, _ := url.Parse(srv.URL)
	gate := &testGate{allowed: u.Host, inner: netguard.New(noResolver{})}
	f, err := New(logger.Nop(), gate, cfg, WithHTTPClient(&http.Client{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, gate
}

func TestGetFollowsRedirectsAndValidatesEachHop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			http.Redirect(w, r, "/b", http.StatusFound)
		case "/b":
			http.Redirect(w, r, "/final", http.StatusMovedPermanently)
		case "/final":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<p>ok</p>"))
		}
	}))
	defer srv.Close()

	f, gate := newTestFetcher(t, srv, Config{})
	resp, err := f.Get(context.Background(), srv.URL+"/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != "<p>ok</p>" {
		t.Fatalf("body: got=%q", resp.Body)
	}
	if !strings.HasSuffix(resp.URL, "/final") {
		t.Fatalf("final url: got=%q", resp.URL)
	}
	if len(gate.seen) != 3 {
		t.Fatalf("validated hops: want=3 got=%d (%v)", len(gate.seen), gate.seen)
	}
}

func TestRedirectToPrivateAddressIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://10.0.0.5/secret", http.StatusFound)
	}))
	defer srv.Close()

	f, gate := newTestFetcher(t, srv, Config{})
	_, err := f.Get(context.Background(), srv.URL+"/start")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("want ErrBlocked, got %v", err)
	}
	if gate.seen[len(gate.seen)-1] != "http://10.0.0.5/secret" {
		t.Fatalf("redirect target not validated: %v", gate.seen)
	}
}

func TestInitialURLBlockedBeforeAnyRequest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	f, _ := newTestFetcher(t, srv, Config{})
	for _, raw := range []string{"http://localhost:8080/x", "http://10.0.0.5/x"} {
		if _, err := f.Get(context.Background(), raw); !errors.Is(err, ErrBlocked) {
			t.Fatalf("%s: want ErrBlocked got %v", raw, err)
		}
	}
	if hits != 0 {
		t.Fatalf("no request should have been made, hits=%d", hits)
	}
}

func TestRedirectLoopCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer srv.Close()

	f, gate := newTestFetcher(t, srv, Config{MaxRedirects: 3})
	_, err := f.Get(context.Background(), srv.URL+"/loop")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("want ErrTooManyRedirects got %v", err)
	}
	if len(gate.seen) != 4 {
		t.Fatalf("hops validated: want=4 got=%d", len(gate.seen))
	}
}

func TestBodyCapAndStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, srv, Config{MaxBytes: 16})
	if _, err := f.Get(context.Background(), srv.URL+"/big"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge got %v", err)
	}
	_, err := f.Get(context.Background(), srv.URL+"/missing")
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 StatusError got %v", err)
	}
}
