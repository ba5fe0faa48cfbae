package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/circle/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// wrapKind tags err with op and a sentinel kind so callers can match it.
func wrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrInvalidSurface):
		return http.StatusBadRequest, "invalid_surface"
	case errors.Is(err, service.ErrPathTooLong):
		return http.StatusBadRequest, "path_too_long"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
