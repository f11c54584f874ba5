package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"elcedro/backend/internal/analytics"
	"elcedro/backend/internal/domain"
	"elcedro/backend/internal/logger"
	"elcedro/backend/internal/prefs"
	"elcedro/backend/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) DatasetMeta(w http.ResponseWriter, _ *http.Request) {
	meta, err := h.svc.Meta()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *Handler) RefreshDataset(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Refresh(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("dataset refresh failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) DefaultWindow(w http.ResponseWriter, _ *http.Request) {
	f, err := h.svc.DefaultWindow()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handler) KPIs(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := h.svc.KPIPayload(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) MonthlyWindow(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := h.svc.MonthlyWindowPayload(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) YearSummary(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := h.svc.YearSummaryPayload(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()
	topN, err := parseOptionalInt(query.Get("top"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	excludeOther, err := parseOptionalBool(query.Get("exclude_other"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dim := analytics.Dimension(chi.URLParam(r, "dimension"))
	payload, err := h.svc.BreakdownPayload(r.Context(), f, dim, topN, excludeOther)
	if err != nil {
		if errors.Is(err, service.ErrNoData) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) Vendors(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	topN, err := parseOptionalInt(r.URL.Query().Get("top"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := h.svc.VendorsPayload(r.Context(), f, topN)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"), 200)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lines, total, err := h.svc.Transactions(f, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"lines": lines,
	})
}

func (h *Handler) ListViews(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListViews(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetView(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, prefs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "view not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) PutView(w http.ResponseWriter, r *http.Request) {
	var view prefs.SavedView
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if name := chi.URLParam(r, "name"); name != "" {
		view.Name = name
	}
	if err := h.svc.PutView(r.Context(), view); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": view.Name})
}

func (h *Handler) DeleteView(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteView(r.Context(), chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, prefs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "view not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterFromQuery parses the shared filter query parameters. month_start may
// be negative to request a window crossing into the prior year.
func filterFromQuery(r *http.Request) (domain.FilterSpec, error) {
	query := r.URL.Query()

	year, err := parseOptionalInt(query.Get("year"), 0)
	if err != nil {
		return domain.FilterSpec{}, fmt.Errorf("year: %w", err)
	}
	if year == 0 {
		return domain.FilterSpec{}, fmt.Errorf("year is required")
	}
	monthStart, err := parseOptionalSignedInt(query.Get("month_start"), 1)
	if err != nil {
		return domain.FilterSpec{}, fmt.Errorf("month_start: %w", err)
	}
	monthEnd, err := parseOptionalInt(query.Get("month_end"), 12)
	if err != nil {
		return domain.FilterSpec{}, fmt.Errorf("month_end: %w", err)
	}
	if monthEnd < 1 || monthEnd > 12 {
		return domain.FilterSpec{}, fmt.Errorf("month_end must be between 1 and 12")
	}
	if monthStart > monthEnd {
		return domain.FilterSpec{}, fmt.Errorf("month_start must not exceed month_end")
	}
	includeReturns, err := parseOptionalBool(query.Get("include_returns"), false)
	if err != nil {
		return domain.FilterSpec{}, fmt.Errorf("include_returns: %w", err)
	}
	excludeCredit, err := parseOptionalBool(query.Get("exclude_credit"), false)
	if err != nil {
		return domain.FilterSpec{}, fmt.Errorf("exclude_credit: %w", err)
	}
	withTax, err := parseOptionalBool(query.Get("with_tax"), true)
	if err != nil {
		return domain.FilterSpec{}, fmt.Errorf("with_tax: %w", err)
	}

	f := domain.FilterSpec{
		Year:           year,
		MonthStart:     monthStart,
		MonthEnd:       monthEnd,
		Branch:         strings.TrimSpace(query.Get("branch")),
		Family:         strings.TrimSpace(query.Get("family")),
		Brand:          strings.TrimSpace(query.Get("brand")),
		IncludeReturns: includeReturns,
		ExcludeCredit:  excludeCredit,
		WithTax:        withTax,
	}
	return f.Normalize(), nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrNoData) {
		writeError(w, http.StatusServiceUnavailable, "dataset not loaded yet")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func parseOptionalInt(raw string, defaultValue int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %s", raw)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("value cannot be negative")
	}
	return parsed, nil
}

func parseOptionalSignedInt(raw string, defaultValue int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %s", raw)
	}
	return parsed, nil
}

func parseOptionalBool(raw string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("must be true or false: %s", raw)
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
