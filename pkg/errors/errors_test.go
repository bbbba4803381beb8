package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := Wrap(stdErrors.New("boom"), "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromErrorUnwrapsWrappedAppError(t *testing.T) {
	wrapped := fmt.Errorf("card service: %w", ErrInvalidURL)

	out := FromError(wrapped)
	if out != ErrInvalidURL {
		t.Fatalf("expected ErrInvalidURL, got %v", out)
	}

	raw := stdErrors.New("raw")
	out = FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if !stdErrors.Is(out, raw) {
		t.Fatal("expected raw error to be reachable through Unwrap")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("url is required")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "url is required" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if ErrBadRequest.Message != "Invalid request" {
		t.Fatal("sentinel message must not be mutated")
	}
}
