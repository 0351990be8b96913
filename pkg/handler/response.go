package handler

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type jsonResponse struct {
	status int
	body   Envelope
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

func WithStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

// JSON wraps v in the data field of an Envelope.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: Envelope{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError answers with err's HTTPError status and key, or 500. message,
// when not empty, replaces the default text.
func JSONError(err error, message string, opts ...JSONOption) Response {
	herr := ErrInternalServerError
	errors.As(err, &herr)
	if message == "" {
		message = http.StatusText(herr.Code)
	}
	r := &jsonResponse{
		status: herr.Code,
		body:   Envelope{Error: &ErrorDetail{Code: herr.Key, Message: message}},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type emptyResponse struct{ status int }

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// NoContent answers 204 with no body.
func NoContent() Response { return emptyResponse{status: http.StatusNoContent} }
