package inference

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewConstructsFormattedError(t *testing.T) {
	err := New(ErrUnknownFunction, "no such function %q", "greet")
	if err.Kind != ErrUnknownFunction {
		t.Fatalf("Kind = %q, want ErrUnknownFunction", err.Kind)
	}
	if err.Message != `no such function "greet"` {
		t.Fatalf("Message = %q", err.Message)
	}
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrInferenceServer, cause, "call failed")
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestErrorStringIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrInferenceServer, cause, "call failed")
	s := err.Error()
	if !strings.Contains(s, "boom") {
		t.Fatalf("Error() = %q, expected it to include the wrapped cause", s)
	}
}

func TestAsErrorUnwrapsWrappedStdlibError(t *testing.T) {
	inner := New(ErrBadRequest, "bad")
	wrapped := fmt.Errorf("context: %w", inner)

	got, ok := AsError(wrapped)
	if !ok || got.Kind != ErrBadRequest {
		t.Fatalf("AsError = %v, %v, want the unwrapped ErrBadRequest", got, ok)
	}
}

func TestAsErrorFalseForPlainError(t *testing.T) {
	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatal("expected AsError to report false for a non-inference error")
	}
}

func TestAsErrorFalseForNil(t *testing.T) {
	if _, ok := AsError(nil); ok {
		t.Fatal("expected AsError to report false for nil")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[ErrorKind]int{
		ErrBadRequest:      400,
		ErrUnknownFunction: 400,
		ErrAPIKeyMissing:   401,
		ErrRateLimit:       429,
		ErrInferenceServer: 502,
		ErrFatalStream:     502,
	}
	for kind, want := range cases {
		err := &Error{Kind: kind}
		if got := err.HTTPStatus(); got != want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestHTTPStatusClientErrorUsesOwnStatusWhen4xx(t *testing.T) {
	status := 404
	err := &Error{Kind: ErrInferenceClient, Status: &status}
	if got := err.HTTPStatus(); got != 404 {
		t.Fatalf("HTTPStatus = %d, want 404", got)
	}
}

func TestHTTPStatusClientErrorDefaultsTo502WithoutStatus(t *testing.T) {
	err := &Error{Kind: ErrInferenceClient}
	if got := err.HTTPStatus(); got != 502 {
		t.Fatalf("HTTPStatus = %d, want 502", got)
	}
}

func TestRetryableClassification(t *testing.T) {
	retryable := []ErrorKind{ErrInferenceServer, ErrRateLimit, ErrInferenceTimeout}
	for _, k := range retryable {
		if !(&Error{Kind: k}).Retryable() {
			t.Errorf("%q should be retryable", k)
		}
	}
	notRetryable := []ErrorKind{ErrInferenceClient, ErrBadRequest, ErrAPIKeyMissing}
	for _, k := range notRetryable {
		if (&Error{Kind: k}).Retryable() {
			t.Errorf("%q should not be retryable", k)
		}
	}
}

func TestShouldFailoverClassification(t *testing.T) {
	yes := []ErrorKind{ErrInferenceServer, ErrInferenceClient, ErrInferenceTimeout, ErrRateLimit, ErrAPIKeyMissing}
	for _, k := range yes {
		if !(&Error{Kind: k}).ShouldFailover() {
			t.Errorf("%q should trigger failover", k)
		}
	}
	if (&Error{Kind: ErrBadRequest}).ShouldFailover() {
		t.Fatal("ErrBadRequest should not trigger failover")
	}
}

func TestClassifyStatusCode(t *testing.T) {
	cases := map[int]ErrorKind{
		401: ErrAPIKeyMissing,
		403: ErrAPIKeyMissing,
		429: ErrRateLimit,
		500: ErrInferenceServer,
		503: ErrInferenceServer,
		404: ErrInferenceClient,
		418: ErrInferenceClient,
		200: ErrInternal,
	}
	for status, want := range cases {
		if got := ClassifyStatusCode(status); got != want {
			t.Errorf("ClassifyStatusCode(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestNilErrorErrorStringIsEmpty(t *testing.T) {
	var err *Error
	if err.Error() != "" {
		t.Fatalf("expected an empty string for a nil *Error, got %q", err.Error())
	}
}
