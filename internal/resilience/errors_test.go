package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("server overloaded"), 503), true},
		{"wrapped transient", fmt.Errorf("fetch transaction: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"plain error", errors.New("invalid image payload"), false},
		{"econnreset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"econnrefused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"econnaborted", fmt.Errorf("read tcp: %w", syscall.ECONNABORTED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"reset by peer string", errors.New("connection reset by peer"), true},
		{"broken pipe string", errors.New("broken pipe"), true},
		{"tls handshake string", errors.New("TLS handshake timeout"), true},
		{"io timeout string", errors.New("i/o timeout"), true},
		{"idle connection string", errors.New("server closed idle connection"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 409, 413, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestTransientError_Chain(t *testing.T) {
	inner := errors.New("bad gateway")
	te := NewTransientError(inner, 502)

	if te.Error() != inner.Error() {
		t.Errorf("Error() = %q, want %q", te.Error(), inner.Error())
	}
	if !errors.Is(te, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}
	if te.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want 502", te.StatusCode)
	}
}
