package errors

import "net/http"

const (
	CodeUnavailable       = "UNAVAILABLE"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeSuperseded        = "SUPERSEDED"
	CodeInvalidViewport   = "INVALID_VIEWPORT"
	CodeInvalidRoute      = "INVALID_ROUTE"
	CodeHazardNotFound    = "HAZARD_NOT_FOUND"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeCacheError        = "CACHE_ERROR"
	CodeInternal          = "INTERNAL_SERVER_ERROR"
)

var (
	// ErrUnavailable is the retryable advisory raised for transient backend failures.
	ErrUnavailable = &AppError{
		Code:       CodeUnavailable,
		Message:    "Data is temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}

	ErrMalformedResponse = New(
		CodeMalformedResponse,
		"Backend returned a malformed response",
		http.StatusBadGateway,
	)

	// ErrSuperseded is never shown to the user.
	ErrSuperseded = New(
		CodeSuperseded,
		"Request was superseded by a newer one",
		http.StatusConflict,
	)

	ErrInvalidViewport = New(
		CodeInvalidViewport,
		"Invalid viewport",
		http.StatusBadRequest,
	)

	ErrInvalidRoute = New(
		CodeInvalidRoute,
		"Invalid route",
		http.StatusBadRequest,
	)

	ErrHazardNotFound = New(
		CodeHazardNotFound,
		"Hazard not found",
		http.StatusNotFound,
	)

	ErrCacheError = New(
		CodeCacheError,
		"Cache operation failed",
		http.StatusInternalServerError,
	)

	ErrInvalidRequest = New(
		CodeInvalidRequest,
		"Invalid request parameters",
		http.StatusBadRequest,
	)

	ErrInternalServer = New(
		CodeInternal,
		"Internal server error",
		http.StatusInternalServerError,
	)
)
