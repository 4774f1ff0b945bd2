// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses. Every
// response shares one envelope: {"success":true,"data":...} on success and
// {"success":false,"error":"...","code":"..."} on failure.

package http

import (
	"encoding/json"
	"net/http"

	"carteira/internal/core"
	"carteira/internal/log"
)

// Error codes that are not part of the domain taxonomy.
const (
	CodeBadRequest       = "bad_request"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeRouteNotFound    = "route_not_found"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "unavailable"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

// NewJSONResponse creates a new success response with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		body:       envelope{Success: true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the payload of a success response.
func (b *JSONResponseBuilder) Data(v interface{}) *JSONResponseBuilder {
	b.body.Data = v
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse creates a failure envelope.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: statusCode,
		body:       envelope{Success: false, Error: message, Code: code},
		headers:    make(map[string]string),
	}
}

// BadRequestError creates a 400 response for malformed input.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// NotFoundError creates a 404 response for a missing entity.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, string(core.KindNotFound), message)
}

// MethodNotAllowedError creates a 405 response.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed").
		Header("Allow", allowedMethods)
}

// StatusFor maps the domain error taxonomy to HTTP status codes.
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindAlreadyExecuted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// DomainError converts err into a failure envelope. Unexpected errors are
// logged and replaced by a generic message.
func DomainError(r *http.Request, err error) *JSONResponseBuilder {
	status := StatusFor(err)
	kind := core.KindOf(err)
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err.Error(),
			"method", r.Method,
			"path", r.URL.Path)
		return ErrorResponse(status, string(kind), "internal server error")
	}
	return ErrorResponse(status, string(kind), err.Error())
}

// WriteResult writes a use case result with the given success status.
func WriteResult[T any](w http.ResponseWriter, r *http.Request, res core.Result[T], status int) {
	v, err := res.Unwrap()
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(status).Data(v).Write(w)
}

// WriteList writes a slice, rendering nil as an empty JSON array.
func WriteList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	NewJSONResponse().Data(items).Write(w)
}
