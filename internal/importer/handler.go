package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pritecards/internal/app/apiresp"
	"pritecards/internal/auth"
	"pritecards/internal/dedup"
	"pritecards/internal/question"
)

const maxUploadBytes = 20 << 20

type Handler struct {
	svc importService
}

type importService interface {
	Scan(ctx context.Context, in ScanInput) (*View, error)
	ScanExcel(ctx context.Context, creator string, r io.Reader, ov dedup.Overrides, includePublic bool) (*View, error)
	Get(ctx context.Context, creator, id string) (*View, error)
	SetStrategy(ctx context.Context, creator, id string, strategy dedup.Strategy) (*View, error)
	SetManualSelections(ctx context.Context, creator, id string, sel dedup.ManualSelections) (*View, error)
	Resolve(ctx context.Context, creator, id string) (*View, error)
	Skip(ctx context.Context, creator, id string) (*View, error)
	ApplyToAll(ctx context.Context, creator, id string) (*View, error)
	Reopen(ctx context.Context, creator, id string, cluster int) (*View, error)
	Commit(ctx context.Context, creator, id string) (*question.SaveReport, error)
	Cancel(ctx context.Context, creator, id string) error
	ExportCorpus(ctx context.Context, creator, part string) ([]byte, error)
}

type apiResponse struct {
	OK      bool        `json:"ok"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type mergeFailure struct {
	Cluster int    `json:"cluster"`
	Field   string `json:"field,omitempty"`
}

type scanRequest struct {
	Questions     []question.Record `json:"questions"`
	Overrides     dedup.Overrides   `json:"overrides"`
	IncludePublic bool              `json:"include_public"`
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

type manualSelectionsRequest struct {
	Selections dedup.ManualSelections `json:"selections"`
}

type reopenRequest struct {
	Cluster *int `json:"cluster"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the import and export endpoints. Callers wrap them with
// authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/imports/scan", h.Scan)
	r.Post("/imports/scan/excel", h.ScanExcel)
	r.Get("/imports/{id}", h.Get)
	r.Put("/imports/{id}/strategy", h.SetStrategy)
	r.Put("/imports/{id}/manual-selections", h.SetManualSelections)
	r.Post("/imports/{id}/resolve", h.Resolve)
	r.Post("/imports/{id}/skip", h.Skip)
	r.Post("/imports/{id}/apply-all", h.ApplyToAll)
	r.Post("/imports/{id}/reopen", h.Reopen)
	r.Post("/imports/{id}/commit", h.Commit)
	r.Delete("/imports/{id}", h.Cancel)
	r.Get("/questions/export.xlsx", h.ExportExcel)
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req scanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	view, err := h.svc.Scan(r.Context(), ScanInput{
		Creator:       creator,
		Candidates:    req.Questions,
		Overrides:     req.Overrides,
		IncludePublic: req.IncludePublic,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: view})
}

func (h *Handler) ScanExcel(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, apiResponse{OK: false, Error: "upload exceeds 20MB"})
			return
		}
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file is required"})
		return
	}
	defer file.Close()

	var ov dedup.Overrides
	if raw := strings.TrimSpace(r.FormValue("overrides")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ov); err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "overrides must be a json object"})
			return
		}
	}
	includePublic, _ := strconv.ParseBool(r.FormValue("include_public"))

	view, err := h.svc.ScanExcel(r.Context(), creator, file, ov, includePublic)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: view})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, creator, id string) (*View, error) {
		return h.svc.Get(ctx, creator, id)
	})
}

func (h *Handler) SetStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	strategy, err := dedup.ParseStrategy(req.Strategy)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.withSession(w, r, func(ctx context.Context, creator, id string) (*View, error) {
		return h.svc.SetStrategy(ctx, creator, id, strategy)
	})
}

func (h *Handler) SetManualSelections(w http.ResponseWriter, r *http.Request) {
	var req manualSelectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	h.withSession(w, r, func(ctx context.Context, creator, id string) (*View, error) {
		return h.svc.SetManualSelections(ctx, creator, id, req.Selections)
	})
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, creator, id string) (*View, error) {
		return h.svc.Resolve(ctx, creator, id)
	})
}

func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, creator, id string) (*View, error) {
		return h.svc.Skip(ctx, creator, id)
	})
}

func (h *Handler) ApplyToAll(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, creator, id string) (*View, error) {
		return h.svc.ApplyToAll(ctx, creator, id)
	})
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	var req reopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Cluster == nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "cluster is required"})
		return
	}
	h.withSession(w, r, func(ctx context.Context, creator, id string) (*View, error) {
		return h.svc.Reopen(ctx, creator, id, *req.Cluster)
	})
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	report, err := h.svc.Commit(r.Context(), creator, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	if err := h.svc.Cancel(r.Context(), creator, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "cancelled"}})
}

func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	body, err := h.svc.ExportCorpus(r.Context(), creator, strings.TrimSpace(r.URL.Query().Get("part")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="questions.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, creator, id string) (*View, error)) {
	creator, ok := auth.CurrentCreator(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	view, err := fn(r.Context(), creator, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: view})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var me *dedup.MergeError
	switch {
	case errors.As(err, &me):
		msg := fmt.Sprintf("cluster %d: %v", me.Cluster, me.Err)
		if me.Field != "" {
			msg = fmt.Sprintf("cluster %d field %s: %v", me.Cluster, me.Field, me.Err)
		}
		code := apiresp.CodeMergeFailed
		if errors.Is(err, dedup.ErrReadOnlyCluster) {
			code = apiresp.CodeReadOnlyCluster
		}
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{
			OK: false, Error: msg, Code: code,
			Details: mergeFailure{Cluster: me.Cluster, Field: me.Field},
		})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, dedup.ErrInvalidInput), errors.Is(err, dedup.ErrInvalidConfig):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, dedup.ErrReadOnlyCluster):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error(), Code: apiresp.CodeReadOnlyCluster})
	case errors.Is(err, dedup.ErrInvalidStrategy), errors.Is(err, dedup.ErrInconsistentSelection):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, question.ErrForbidden):
		writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: err.Error(), Code: apiresp.CodeForeignQuestion})
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, dedup.ErrWorkflowMisuse), errors.Is(err, ErrAlreadyCommitted):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteErrorDetail(w, r, code, payload.Code, payload.Error, payload.Details)
}
