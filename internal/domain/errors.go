package domain

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput         = "PAYOUT_BAD_INPUT"
	ErrorInvalidSignature = "PAYOUT_INVALID_SIGNATURE"
	ErrorNotFound         = "PAYOUT_NOT_FOUND"
	ErrorConflict         = "PAYOUT_CONFLICT"
	ErrorInternal         = "PAYOUT_INTERNAL_ERROR"
	ErrorUpstream         = "PAYOUT_UPSTREAM_ERROR"
)

func newError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// BadInput is a client error that is never retried.
func BadInput(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, metadata)
}

// InvalidSignature rejects a notification whose signature does not verify.
// The receiver surfaces it as a 400, not a 401, since the caller is a machine peer.
func InvalidSignature(metadata map[string]any) error {
	return newError("Invalid signature", goerrors.CategoryAuth, http.StatusBadRequest, ErrorInvalidSignature, metadata)
}

func NotFound(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryNotFound, http.StatusNotFound, ErrorNotFound, metadata)
}

func Conflict(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryConflict, http.StatusConflict, ErrorConflict, metadata)
}

// IdempotencyMismatch rejects reuse of an idempotency key with a different payload.
func IdempotencyMismatch(key string) error {
	return Conflict("idempotency key reused with a different payload", map[string]any{"idempotency_key": key})
}

// Internal wraps an unexpected failure; the source error stays attached for logs.
func Internal(source error, message string, metadata map[string]any) error {
	if source == nil {
		return newError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// Upstream reports a failed call to the payment processor.
func Upstream(source error, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryExternal)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	}
	err = err.WithCode(http.StatusBadGateway).WithTextCode(ErrorUpstream)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// AsError extracts the go-errors envelope when err carries one.
func AsError(err error) (*goerrors.Error, bool) {
	var rich *goerrors.Error
	if err != nil && goerrors.As(err, &rich) {
		return rich, true
	}
	return nil, false
}

// HasTextCode reports whether err is an envelope with the given text code.
func HasTextCode(err error, textCode string) bool {
	rich, ok := AsError(err)
	return ok && rich.TextCode == textCode
}
