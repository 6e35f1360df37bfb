package netguard

import (
	"context"
	"errors"
	"net"
	"testing"
)

type stubResolver struct {
	addrs map[string][]net.IPAddr
	calls int
}

func (r *stubResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	r.calls++
	if a, ok := r.addrs[host]; ok {
		return a, nil
	}
	return nil, errors.New("no such host")
}

func TestGateRejectsLocalAndPrivateWithoutNetwork(t *testing.T) {
	res := &stubResolver{}
	g := New(res)
	for _, raw := range []string{
		"http://localhost:8080/x",
		"http://10.0.0.5/x",
		"http://127.0.0.1/",
		"http://[::1]/",
		"http://169.254.169.254/latest/meta-data",
		"http://192.168.1.1/admin",
		"http://172.20.0.1/",
		"http://api.localhost/",
	} {
		err := g.Validate(context.Background(), raw)
		if !errors.Is(err, ErrPrivateAddress) {
			t.Fatalf("%s: want ErrPrivateAddress got %v", raw, err)
		}
	}
	if res.calls != 0 {
		t.Fatalf("literal and localhost checks must not resolve, calls=%d", res.calls)
	}
}

func TestGateRejectsSchemes(t *testing.T) {
	g := New(&stubResolver{})
	for _, raw := range []string{"file:///etc/passwd", "ftp://example.com/x", "gopher://example.com", "javascript:alert(1)"} {
		if err := g.Validate(context.Background(), raw); !errors.Is(err, ErrUnsafeScheme) {
			t.Fatalf("%s: want ErrUnsafeScheme got %v", raw, err)
		}
	}
	if err := g.Validate(context.Background(), "http:///nohost"); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("want ErrMissingHost got %v", err)
	}
}

func TestGateResolvesHostnames(t *testing.T) {
	res := &stubResolver{addrs: map[string][]net.IPAddr{
		"example.com":   {{IP: net.ParseIP("93.184.216.34")}},
		"internal.corp": {{IP: net.ParseIP("93.184.216.34")}, {IP: net.ParseIP("10.1.2.3")}},
	}}
	g := New(res)
	if err := g.Validate(context.Background(), "https://example.com/post"); err != nil {
		t.Fatalf("public host rejected: %v", err)
	}
	if err := g.Validate(context.Background(), "https://internal.corp/"); !errors.Is(err, ErrPrivateAddress) {
		t.Fatalf("mixed resolution must be rejected, got %v", err)
	}
	if err := g.Validate(context.Background(), "https://nowhere.invalid/"); !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("unresolvable host: got %v", err)
	}
}

func TestDialControl(t *testing.T) {
	if err := DialControl("tcp", "127.0.0.1:80", nil); !errors.Is(err, ErrPrivateAddress) {
		t.Fatalf("loopback dial allowed: %v", err)
	}
	if err := DialControl("tcp", "93.184.216.34:443", nil); err != nil {
		t.Fatalf("public dial rejected: %v", err)
	}
}
