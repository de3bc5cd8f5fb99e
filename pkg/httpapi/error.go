package httpapi

import (
	"encoding/json"
	"net/http"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-Id"

// Error is the JSON error envelope every endpoint answers with.
type Error struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// With returns a copy of e with key set in its meta.
func (e *Error) With(key, value string) *Error {
	out := *e
	out.Meta = make(map[string]string, len(e.Meta)+1)
	for k, v := range e.Meta {
		out.Meta[k] = v
	}
	out.Meta[key] = value
	return &out
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(payload)
}

// WriteError writes e with its status (500 when unset) and echoes the
// response's request id as meta.request_id.
func WriteError(w http.ResponseWriter, e *Error) error {
	if w == nil || e == nil {
		return nil
	}
	if id := w.Header().Get(RequestIDHeader); id != "" && e.Meta["request_id"] == "" {
		e = e.With("request_id", id)
	}
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return WriteJSON(w, status, e)
}
