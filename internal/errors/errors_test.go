package errors

import (
	"fmt"
	"testing"
)

func TestShipError_Error(t *testing.T) {
	err := &ShipError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "no cached shipment: tab 5",
	}

	expected := "NOT_FOUND: no cached shipment: tab 5"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewPrecondition(t *testing.T) {
	err := NewPrecondition("Missing token or shipmentId", "token")

	if err.Code != ErrPrecondition {
		t.Errorf("Code = %q, want %q", err.Code, ErrPrecondition)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	missing, ok := err.Details["missing"].([]string)
	if !ok || len(missing) != 1 || missing[0] != "token" {
		t.Errorf("Details[missing] = %v, want [token]", err.Details["missing"])
	}
}

func TestNewPrecondition_NoDetails(t *testing.T) {
	err := NewPrecondition("Missing tabId")
	if err.Details != nil {
		t.Errorf("Details = %v, want nil", err.Details)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("unknown message type")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "unknown message type" {
		t.Errorf("Message = %q, want %q", err.Message, "unknown message type")
	}
}

func TestNewForbidden(t *testing.T) {
	err := NewForbidden("invalid origin")
	if err.Code != ErrForbidden || err.Status != 403 {
		t.Errorf("got %q/%d, want %q/403", err.Code, err.Status, ErrForbidden)
	}
}

func TestNewUnsupportedMedia(t *testing.T) {
	err := NewUnsupportedMedia("text/plain")
	if err.Code != ErrUnsupported || err.Status != 415 {
		t.Errorf("got %q/%d, want %q/415", err.Code, err.Status, ErrUnsupported)
	}
	if err.Details["content_type"] != "text/plain" {
		t.Errorf("Details[content_type] = %v, want text/plain", err.Details["content_type"])
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("tab 7")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "tab 7" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "tab 7")
	}
}

func TestNewFileNotFound(t *testing.T) {
	err := NewFileNotFound("/tmp/missing.json")
	if err.Code != ErrNotFound || err.Status != 404 {
		t.Errorf("got %s/%d, want NOT_FOUND/404", err.Code, err.Status)
	}
	if err.Details["path"] != "/tmp/missing.json" {
		t.Errorf("Details[path] = %v", err.Details["path"])
	}
}

func TestNewUpstream(t *testing.T) {
	err := NewUpstream(fmt.Errorf("dial tcp: connection refused"))

	if err.Code != ErrUpstream {
		t.Errorf("Code = %q, want %q", err.Code, ErrUpstream)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Message != "dial tcp: connection refused" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewUpstream_NilError(t *testing.T) {
	err := NewUpstream(nil)
	if err.Message != "upstream request failed" {
		t.Errorf("Message = %q, want %q", err.Message, "upstream request failed")
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("database locked"))

	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
	if err.Message != "database locked" {
		t.Errorf("Message = %q, want %q", err.Message, "database locked")
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewPrecondition("x"), ErrPrecondition, true},
		{"different code", NewPrecondition("x"), ErrUpstream, false},
		{"wrapped", fmt.Errorf("fetch: %w", NewUpstream(nil)), ErrUpstream, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	if got := Message(NewPrecondition("Missing tabId")); got != "Missing tabId" {
		t.Errorf("Message(ShipError) = %q", got)
	}
	if got := Message(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("Message(plain) = %q", got)
	}
	if got := Message(nil); got != "" {
		t.Errorf("Message(nil) = %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("wrap: %w", NewNotFound("tab 1"))); got != ErrNotFound {
		t.Errorf("CodeOf(wrapped) = %q", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q", got)
	}
}
