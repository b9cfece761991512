package apiresp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Error codes that are more specific than the status code.
const (
	CodeMergeFailed     = "merge_failed"
	CodeReadOnlyCluster = "read_only_cluster"
	CodeForeignQuestion = "foreign_question"
)

type ErrorPayload struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
	Count     *int   `json:"count,omitempty"`
}

type Envelope struct {
	OK    bool          `json:"ok"`
	Data  interface{}   `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	Meta  Meta          `json:"meta"`
}

func WriteOK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, Envelope{OK: true, Data: data})
}

// WriteList writes a page of items with their count in meta.
func WriteList(w http.ResponseWriter, r *http.Request, status int, items interface{}, count int) {
	write(w, r, status, Envelope{OK: true, Data: items, Meta: Meta{Count: &count}})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	WriteErrorDetail(w, r, status, "", msg, nil)
}

// WriteErrorDetail writes an error with an explicit code and optional
// details. An empty code falls back to the one derived from status.
func WriteErrorDetail(w http.ResponseWriter, r *http.Request, status int, code, msg string, details interface{}) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	if code == "" {
		code = codeFromStatus(status)
	}
	write(w, r, status, Envelope{Error: &ErrorPayload{Code: code, Message: msg, Details: details}})
}

func write(w http.ResponseWriter, r *http.Request, status int, res Envelope) {
	res.Meta.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		if status >= 200 && status < 300 {
			return ""
		}
		return "error"
	}
}
