package rpcerror

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// recognizedKeys mark a plain object as an error body.
var recognizedKeys = []string{"message", "status", "statusCode", "error", "code"}

// Body is the wire form of an error at the HTTP boundary. Extra holds any
// passthrough fields from the original body.
type Body struct {
	StatusCode int
	Message    string
	Code       string
	Extra      map[string]any
}

func (b Body) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		out[k] = v
	}
	out["statusCode"] = b.StatusCode
	out["message"] = b.Message
	if b.Code != "" {
		out["code"] = b.Code
	}
	return json.Marshal(out)
}

// Result is the normalized form of an error.
type Result struct {
	StatusCode int
	Body       Body
	Cause      error
}

// Normalize maps any error representation to a status and body. It never
// fails and holds no state, so equal inputs give equal outputs wherever it
// is called.
func Normalize(err any) Result {
	return classify(err).normalize()
}

// variant is the closed set of error shapes, in precedence order:
// wrappedStructured, wrappedPlainObject, directPlainObject,
// directStructured, genericError, unknownError.
type variant interface {
	normalize() Result
}

type wrappedStructured struct {
	outer error
	inner *HTTPError
}

type wrappedPlainObject struct {
	outer error
	obj   map[string]any
}

type directPlainObject struct {
	obj map[string]any
}

type directStructured struct {
	outer error
	err   *HTTPError
}

type genericError struct {
	err     error
	message string
}

type unknownError struct {
	cause error
}

func classify(v any) variant {
	switch x := v.(type) {
	case nil:
		return unknownError{}
	case map[string]any:
		if recognizable(x) {
			return directPlainObject{obj: x}
		}
		return unknownError{}
	case error:
		return classifyError(x)
	}
	return unknownError{}
}

func classifyError(err error) variant {
	var transport *TransportError
	if errors.As(err, &transport) {
		switch p := transport.Payload.(type) {
		case *HTTPError:
			if p != nil {
				return wrappedStructured{outer: err, inner: p}
			}
		case map[string]any:
			if recognizable(p) {
				return wrappedPlainObject{outer: err, obj: p}
			}
		case string:
			if strings.TrimSpace(p) != "" {
				return genericError{err: err, message: p}
			}
		}
		if _, isErr := transport.Payload.(error); !isErr {
			return unknownError{cause: err}
		}
	}

	var structured *HTTPError
	if errors.As(err, &structured) && structured != nil {
		return directStructured{outer: err, err: structured}
	}

	if msg := err.Error(); strings.TrimSpace(msg) != "" {
		return genericError{err: err, message: msg}
	}
	return unknownError{cause: err}
}

func (v wrappedStructured) normalize() Result {
	return structuredResult(v.inner, v.outer)
}

func (v wrappedPlainObject) normalize() Result {
	return objectResult(v.obj, v.outer)
}

func (v directPlainObject) normalize() Result {
	return objectResult(v.obj, nil)
}

func (v directStructured) normalize() Result {
	return structuredResult(v.err, v.outer)
}

func (v genericError) normalize() Result {
	return Result{
		StatusCode: http.StatusInternalServerError,
		Body:       Body{StatusCode: http.StatusInternalServerError, Message: v.message},
		Cause:      v.err,
	}
}

func (v unknownError) normalize() Result {
	return Result{
		StatusCode: http.StatusInternalServerError,
		Body:       Body{StatusCode: http.StatusInternalServerError, Message: DefaultMessage},
		Cause:      v.cause,
	}
}

func structuredResult(e *HTTPError, cause error) Result {
	status, ok := validStatus(e.Status)
	if !ok {
		status = statusFrom(e.Body)
	}
	return Result{StatusCode: status, Body: bodyFrom(e.Body, status), Cause: cause}
}

func objectResult(obj map[string]any, cause error) Result {
	status := statusFrom(obj)
	return Result{StatusCode: status, Body: bodyFrom(obj, status), Cause: cause}
}

func recognizable(obj map[string]any) bool {
	for _, key := range recognizedKeys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func statusFrom(obj map[string]any) int {
	for _, key := range []string{"statusCode", "status"} {
		if code, ok := toStatus(obj[key]); ok {
			return code
		}
	}
	return http.StatusInternalServerError
}

func bodyFrom(obj map[string]any, status int) Body {
	body := Body{StatusCode: status, Message: DefaultMessage}
	if msg, ok := extractMessage(obj); ok {
		body.Message = msg
	}
	if code, ok := obj["code"].(string); ok && strings.TrimSpace(code) != "" {
		body.Code = code
	}
	for k, v := range obj {
		switch k {
		case "statusCode", "message", "code":
			continue
		}
		if body.Extra == nil {
			body.Extra = make(map[string]any)
		}
		body.Extra[k] = v
	}
	return body
}

// extractMessage reads message, accepting a list of strings joined with
// ", ", and falls back to a string error field.
func extractMessage(obj map[string]any) (string, bool) {
	if msg, ok := messageValue(obj["message"]); ok {
		return msg, true
	}
	if msg, ok := obj["error"].(string); ok && strings.TrimSpace(msg) != "" {
		return msg, true
	}
	return "", false
}

func messageValue(v any) (string, bool) {
	var msg string
	switch m := v.(type) {
	case string:
		msg = m
	case []string:
		msg = strings.Join(m, ", ")
	case []any:
		parts := make([]string, 0, len(m))
		for _, item := range m {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		msg = strings.Join(parts, ", ")
	default:
		return "", false
	}
	if strings.TrimSpace(msg) == "" {
		return "", false
	}
	return msg, true
}

func toStatus(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return validStatus(n)
	case int32:
		return validStatus(int(n))
	case int64:
		return validStatus(int(n))
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return validStatus(int(n))
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return validStatus(int(i))
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return validStatus(i)
	}
	return 0, false
}

// validStatus accepts known 4xx and 5xx codes.
func validStatus(code int) (int, bool) {
	if code < 400 || code > 599 || http.StatusText(code) == "" {
		return 0, false
	}
	return code, true
}
