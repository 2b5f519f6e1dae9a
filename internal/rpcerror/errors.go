// Package rpcerror collapses every error shape that can come back from an
// RPC call into one HTTP error body.
package rpcerror

import (
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultMessage is used whenever no usable message can be extracted.
const DefaultMessage = "Internal server error"

// HTTPError is an HTTP-shaped exception: a status plus the body to send.
type HTTPError struct {
	Status int
	Body   map[string]any
}

// New builds an HTTPError with the standard body fields. An empty code is
// left out of the body.
func New(status int, message, code string) *HTTPError {
	body := map[string]any{
		"statusCode": status,
		"message":    message,
	}
	if code != "" {
		body["code"] = code
	}
	return &HTTPError{Status: status, Body: body}
}

func BadRequest(message, code string) *HTTPError {
	return New(http.StatusBadRequest, message, code)
}

func Unauthorized(message, code string) *HTTPError {
	return New(http.StatusUnauthorized, message, code)
}

func Forbidden(message, code string) *HTTPError {
	return New(http.StatusForbidden, message, code)
}

func NotFound(message, code string) *HTTPError {
	return New(http.StatusNotFound, message, code)
}

func Conflict(message, code string) *HTTPError {
	return New(http.StatusConflict, message, code)
}

func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if msg, ok := extractMessage(e.Body); ok {
		return msg
	}
	return http.StatusText(e.Status)
}

// TransportError is raised by the RPC transport. Payload is whatever the
// remote side sent: an *HTTPError, a decoded JSON object, a string, or nil.
type TransportError struct {
	Payload any
}

func (e *TransportError) Error() string {
	switch p := e.Payload.(type) {
	case error:
		return p.Error()
	case string:
		return p
	case map[string]any:
		if msg, ok := extractMessage(p); ok {
			return msg
		}
	}
	return "rpc call failed"
}

func (e *TransportError) Unwrap() error {
	if err, ok := e.Payload.(error); ok {
		return err
	}
	return nil
}

// DecodeReply builds a TransportError from the raw error reply of an RPC
// call.
func DecodeReply(data []byte) error {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return &TransportError{Payload: strings.TrimSpace(string(data))}
	}
	return &TransportError{Payload: payload}
}
