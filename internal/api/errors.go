package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/quantserve/internal/decode"
	"github.com/samcharles93/quantserve/internal/evaluation"
	"github.com/samcharles93/quantserve/internal/inference"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrModelLoading   = errors.New("model is still loading")
)

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return ErrInvalidRequest.Error() + ": " + e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrModelLoading):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, inference.ErrEmptyPrompt),
		errors.Is(err, inference.ErrModelUnavailable),
		errors.Is(err, decode.ErrInvalidParameter),
		errors.Is(err, decode.ErrInvalidInputShape),
		errors.Is(err, evaluation.ErrNoSamples),
		errors.Is(err, evaluation.ErrInvalidSamples):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
