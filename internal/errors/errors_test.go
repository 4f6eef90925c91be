package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError("bad", nil), ErrorTypeValidation, http.StatusBadRequest},
		{"read", NewReadError("unreadable", cause), ErrorTypeRead, http.StatusUnprocessableEntity},
		{"network", NewNetworkError("down", cause), ErrorTypeNetwork, http.StatusBadGateway},
		{"service", NewServiceError("model failed", cause), ErrorTypeService, http.StatusBadGateway},
		{"timeout", NewTimeoutError("slow", context.DeadlineExceeded), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"unauthorized", NewUnauthorizedError("bad key", cause), ErrorTypeUnauthorized, http.StatusBadGateway},
		{"busy", NewBusyError("in flight"), ErrorTypeBusy, http.StatusConflict},
		{"not found", NewNotFoundError("gone", nil), ErrorTypeNotFound, http.StatusNotFound},
		{"internal", NewInternalError("oops", cause), ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, tt.err.Type)
			}
			if tt.err.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, tt.err.StatusCode)
			}
			if GetStatusCode(tt.err) != tt.wantStatus {
				t.Errorf("GetStatusCode returned %d", GetStatusCode(tt.err))
			}
		})
	}
}

func TestAppError_WrappedChain(t *testing.T) {
	inner := NewServiceError("model failed", context.DeadlineExceeded)
	wrapped := fmt.Errorf("reading: %w", inner)

	if !IsType(wrapped, ErrorTypeService) {
		t.Error("Expected wrapped error to be recognised as service error")
	}
	if TypeOf(wrapped) != ErrorTypeService {
		t.Errorf("Expected service type, got %s", TypeOf(wrapped))
	}
	if GetStatusCode(wrapped) != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", GetStatusCode(wrapped))
	}
	if TypeOf(fmt.Errorf("plain")) != ErrorTypeInternal {
		t.Error("Expected plain errors to be internal")
	}
	if GetStatusCode(fmt.Errorf("plain")) != http.StatusInternalServerError {
		t.Error("Expected plain errors to map to 500")
	}
}

func TestAppError_Message(t *testing.T) {
	err := NewReadError("cannot read upload", fmt.Errorf("unexpected EOF"))
	want := "read: cannot read upload (caused by: unexpected EOF)"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	detailed := err.WithDetails("palm.png")
	if detailed.Details != "palm.png" || err.Details != "" {
		t.Error("Expected WithDetails to return a copy")
	}
}
