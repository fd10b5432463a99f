package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"canceled", fmt.Errorf("read: %w", context.Canceled), ErrorTypeUnknown},
		{"explicit transient", NewTransientError(errors.New("x"), "later"), ErrorTypeTransient},
		{"explicit permanent", NewPermanentError(errors.New("x"), "never"), ErrorTypePermanent},
		{"eof", fmt.Errorf("stream: %w", io.ErrUnexpectedEOF), ErrorTypeTransient},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrorTypeTransient},
		{"errno", fmt.Errorf("write: %w", syscall.ECONNRESET), ErrorTypeTransient},
		{"rate limited", errors.New("bad request: 429 Too Many Requests: slow down"), ErrorTypeTransient},
		{"server error", errors.New("bad request: 503 Service Unavailable"), ErrorTypeTransient},
		{"rejected", errors.New("bad request: 422 Unprocessable Entity: Validation failed"), ErrorTypePermanent},
		{"unauthorized", errors.New("bad request: 401 Unauthorized"), ErrorTypePermanent},
		{"opaque", errors.New("something odd"), ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtractHTTPStatusCode(t *testing.T) {
	if got := ExtractHTTPStatusCode(&PermanentError{StatusCode: 410}); got != 410 {
		t.Fatalf("expected typed status, got %d", got)
	}
	if got := ExtractHTTPStatusCode(errors.New("status 404 not found")); got != 404 {
		t.Fatalf("expected 404, got %d", got)
	}
	if got := ExtractHTTPStatusCode(errors.New("port 4999 closed")); got != 0 {
		t.Fatalf("expected no status in %q, got %d", "port 4999 closed", got)
	}
	if got := ExtractHTTPStatusCode(errors.New("code 499")); got != 0 {
		t.Fatalf("expected unknown status to be ignored, got %d", got)
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	inner := errors.New("inner")
	if !errors.Is(NewTransientError(inner, ""), inner) {
		t.Fatal("transient error should unwrap")
	}
	if !errors.Is(NewPermanentError(inner, ""), inner) {
		t.Fatal("permanent error should unwrap")
	}
	if got := NewTransientError(inner, "").Error(); got != "transient error: inner" {
		t.Fatalf("unexpected message %q", got)
	}
}
