package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"enerkpi.org/internal/audit"
	"enerkpi.org/internal/energy"
)

func (a *API) queryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityKind: q.Get("entity_kind"),
		ActorEmail: q.Get("email"),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
		f.To = t
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))

	items, total, err := a.audits.Query(r.Context(), f, page, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  page,
	})
}

func (a *API) userActivity(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	since := a.anomalies.PeriodStart(period)
	activity, err := a.audits.RecentActivityByActor(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if activity == nil {
		activity = []audit.ActorActivity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activity": activity,
		"since":    since,
	})
}

func (a *API) recentModifications(w http.ResponseWriter, r *http.Request) {
	kind := energy.KindElectricity
	if r.URL.Query().Get("type") == "water" {
		kind = energy.KindWater
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	mods, err := a.audits.RecentModifications(r.Context(), kind, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if mods == nil {
		mods = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modifications": mods,
		"entity_kind":   kind,
		"since":         since,
	})
}
