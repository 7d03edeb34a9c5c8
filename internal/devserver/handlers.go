package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// writeError maps an error kind to its HTTP status and a terse body.
// Internal failures are logged; client errors are not.
func writeError(w http.ResponseWriter, err error, op string) {
	status := apperr.Status(err)
	if status >= 500 {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

// ListSummaries handles GET /api/daily/summaries.
// The optional timezone query parameter shifts "today" for selectability
// and editability.
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Summaries(r.URL.Query().Get("timezone"))
	if err != nil {
		writeError(w, err, "list summaries")
		return
	}
	if items == nil {
		items = []models.DailySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

// GetDay handles GET /api/daily/{date}.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	rec, err := h.svc.Record(date)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeError(w, err, "get day")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateDiary handles PUT /api/daily/{date}. The body is a diary update;
// a closed edit window yields 409 and a payload that does not fit the
// questionnaire yields 422.
func (h *Handler) UpdateDiary(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	date := chi.URLParam(r, "date")

	var upd models.DiaryUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	rec, err := h.svc.SubmitDiary(date, r.URL.Query().Get("timezone"), upd)
	if err != nil {
		writeError(w, err, "update diary")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateSubscription handles POST /api/subscriptions.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var sub SubscriptionRow
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	saved, err := h.svc.SaveSubscription(&sub)
	if err != nil {
		writeError(w, err, "create subscription")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateSubscription handles PUT /api/subscriptions/{id}.
func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid subscription id"))
		return
	}
	var sub SubscriptionRow
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	saved, err := h.svc.ReplaceSubscription(id, &sub)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeError(w, err, "update subscription")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// ListSubscriptions handles GET /api/subscriptions/{caregiverID}.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	caregiverID, err := strconv.Atoi(chi.URLParam(r, "caregiverID"))
	if err != nil || caregiverID < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid caregiver id"))
		return
	}
	subs, err := h.svc.Subscriptions(caregiverID)
	if err != nil {
		writeError(w, err, "list subscriptions")
		return
	}
	if subs == nil {
		subs = []SubscriptionRow{}
	}
	writeJSON(w, http.StatusOK, subs)
}
