package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"enerkpi.org/internal/anomaly"
	"enerkpi.org/internal/auth"
)

func (a *API) listAnomalies(w http.ResponseWriter, r *http.Request) {
	resolved, _ := strconv.ParseBool(r.URL.Query().Get("resolved"))
	items, err := a.anomalies.List(r.Context(), resolved)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeAnomalies(w, items)
}

func (a *API) criticalAnomalies(w http.ResponseWriter, r *http.Request) {
	items, err := a.anomalies.CriticalAnomalies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeAnomalies(w, items)
}

func (a *API) anomalyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.anomalies.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) anomalyStatsPeriod(w http.ResponseWriter, r *http.Request) {
	// Unknown period values fall back to "month" inside the service.
	stats, err := a.anomalies.StatisticsForPeriod(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) anomaliesToday(w http.ResponseWriter, r *http.Request) {
	items, err := a.anomalies.AnomaliesByDay(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeAnomalies(w, items)
}

func (a *API) anomaliesByDate(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}
	items, err := a.anomalies.AnomaliesByDay(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeAnomalies(w, items)
}

func (a *API) waterAnomalies(w http.ResponseWriter, r *http.Request) {
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	items, err := a.anomalies.WaterAnomalies(r.Context(), month, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeAnomalies(w, items)
}

func (a *API) resolveAnomaly(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resolvedBy := ""
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		resolvedBy = principal.Email
	}
	resolved, err := a.anomalies.Resolve(r.Context(), chi.URLParam(r, "id"), resolvedBy, req.Notes)
	if err != nil {
		if errors.Is(err, anomaly.ErrNotFound) {
			writeError(w, http.StatusNotFound, "anomaly not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (a *API) scanNow(w http.ResponseWriter, r *http.Request) {
	report := a.orch.ScanAll(r.Context())
	writeJSON(w, http.StatusOK, report)
}

func (a *API) validateData(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_anomaly": a.orch.CheckSingle(r.Context(), payload),
	})
}

func writeAnomalies(w http.ResponseWriter, items []anomaly.Anomaly) {
	if items == nil {
		items = []anomaly.Anomaly{}
	}
	writeJSON(w, http.StatusOK, items)
}
