// Package oracle is the boundary to the hosted multimodal model that turns a
// palm photograph and an instruction into a written reading.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
)

// Request is everything the remote model receives for one reading
type Request struct {
	Data      []byte
	MediaType string
	Prompt    string
}

// Oracle sends one request to a remote model and returns its text.
// An empty string with a nil error means the model answered without text.
type Oracle interface {
	Divine(ctx context.Context, req Request) (string, error)
	Name() string
}

// Func adapts a plain function to the Oracle interface
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Divine(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func (f Func) Name() string {
	return "func"
}

func validateRequest(req Request) error {
	if len(req.Data) == 0 {
		return apperrors.NewValidationError("image payload is empty", nil)
	}
	if req.MediaType == "" {
		return apperrors.NewValidationError("media type is required", nil)
	}
	return nil
}

// classify wraps transport failures so callers can tell timeouts and
// network trouble apart from model-side rejections
func classify(provider string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	msg := fmt.Sprintf("%s request failed", provider)

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError(msg, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.NewTimeoutError(msg, err)
	case errors.As(err, &netErr):
		return apperrors.NewNetworkError(msg, err)
	default:
		return apperrors.NewServiceError(msg, err)
	}
}
