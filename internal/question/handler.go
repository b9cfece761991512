package question

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pritecards/internal/app/apiresp"
	"pritecards/internal/auth"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	ListCorpus(ctx context.Context, f CorpusFilter) ([]Record, error)
	GetQuestion(ctx context.Context, id string) (*Record, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/questions", h.ListQuestions)
	r.Get("/questions/{id}", h.GetQuestion)
}

func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	q := r.URL.Query()
	filter := CorpusFilter{
		Creator: creator,
		Part:    strings.TrimSpace(q.Get("part")),
	}
	if raw := strings.TrimSpace(q.Get("include_public")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "include_public must be a boolean"})
			return
		}
		filter.IncludePublic = v
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	items, err := h.svc.ListCorpus(r.Context(), filter)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	apiresp.WriteList(w, r, http.StatusOK, items, len(items))
}

// GetQuestion returns a record owned by the caller or marked public. Other
// creators' private records read as not found.
func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	rec, err := h.svc.GetQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	if rec.Creator != creator && !rec.IsPublic {
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: ErrQuestionNotFound.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: rec})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
