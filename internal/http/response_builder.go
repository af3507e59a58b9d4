// Package http provides the REST server and its handlers.
//
// This file implements a small builder for JSON responses so every handler
// writes status, headers and body the same way.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kakeibo/internal/auth"
	"kakeibo/internal/chart"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
	raw        []byte
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets a value to be encoded as the body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.headers["Content-Type"] = "application/json"
	b.body = v
	return b
}

// Bytes sets a raw body with its content type.
func (b *ResponseBuilder) Bytes(contentType string, content []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.raw = content
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	switch {
	case b.raw != nil:
		_, _ = w.Write(b.raw)
	case b.body != nil:
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(ErrorBody{Status: "error", Message: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError() *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not found")
}

func UnauthorizedError() *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "unauthorized")
}

func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal error")
}

// writeJSON writes v with status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	NewResponse().Status(code).JSON(v).Write(w)
}

// statusFor maps a service error onto an HTTP status and a client-safe
// message. The bool is false for errors that should be logged as failures.
func statusFor(err error) (int, ErrorBody, bool) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		status := http.StatusBadRequest
		if errors.Is(err, core.ErrDuplicateCategory) {
			status = http.StatusConflict
		}
		return status, ErrorBody{Status: "error", Message: ve.Err.Error(), Field: ve.Field}, true
	case errors.Is(err, core.ErrDuplicateCategory):
		return http.StatusConflict, ErrorBody{Status: "error", Message: err.Error()}, true
	case errors.Is(err, core.ErrCategoryNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Status: "error", Message: "not found"}, true
	case errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrIndexOutOfRange):
		return http.StatusBadRequest, ErrorBody{Status: "error", Message: err.Error()}, true
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, ErrorBody{Status: "error", Message: err.Error()}, true
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorBody{Status: "error", Message: err.Error()}, true
	case errors.Is(err, auth.ErrInvalidSession), errors.Is(err, auth.ErrExpiredSession):
		return http.StatusUnauthorized, ErrorBody{Status: "error", Message: "unauthorized"}, true
	case errors.Is(err, chart.ErrNoData):
		return http.StatusNotFound, ErrorBody{Status: "error", Message: err.Error()}, true
	default:
		return http.StatusInternalServerError, ErrorBody{Status: "error", Message: "internal error"}, false
	}
}

// writeError logs err through the request logger and writes the mapped
// response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body, expected := statusFor(err)
	logger := log.FromContext(r.Context())
	if expected {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldPath, r.URL.Path, log.FieldStatusCode, status, log.FieldError, err.Error())
	} else {
		fields := log.NewFields().WithError(err).WithErrorType(errorType(err))
		logger.ErrorContext(r.Context(), "Request failed",
			append(fields.ToSlice(), log.FieldPath, r.URL.Path, log.FieldStatusCode, status)...)
	}
	NewResponse().Status(status).JSON(body).Write(w)
}

func errorType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return log.ErrorTypeTimeout
	}
	return log.ErrorTypeInternal
}
