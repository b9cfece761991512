package report

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pritecards/internal/app/apiresp"
	"pritecards/internal/auth"
)

type Handler struct {
	svc summaryService
}

type summaryService interface {
	SummaryByCreator(ctx context.Context, creator string) (*CorpusSummary, error)
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/reports/corpus", h.Summary)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	summary, err := h.svc.SummaryByCreator(r.Context(), creator)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, summary)
}
