// Package httpapi is the HTTP layer: routing, the auth gate and the JSON
// rendering of every service.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"enerkpi.org/internal/anomaly"
	"enerkpi.org/internal/audit"
	"enerkpi.org/internal/auth"
	"enerkpi.org/internal/chatbot"
	"enerkpi.org/internal/energy"
	"enerkpi.org/internal/obs"
)

// ReadyProbe checks readiness, typically a DB ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Log       zerolog.Logger
	Users     *auth.Service
	Tokens    *auth.TokenService
	Audits    *audit.Service
	Anomalies *anomaly.Service
	Orch      *anomaly.Orchestrator
	Energy    *energy.Service
	Chat      *chatbot.Router
	Ready     ReadyProbe
	Version   string

	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	log       zerolog.Logger
	users     *auth.Service
	tokens    *auth.TokenService
	audits    *audit.Service
	anomalies *anomaly.Service
	orch      *anomaly.Orchestrator
	energy    *energy.Service
	chat      *chatbot.Router
	ready     ReadyProbe
	version   string

	router chi.Router
}

func New(d Deps) *API {
	a := &API{
		log:       d.Log,
		users:     d.Users,
		tokens:    d.Tokens,
		audits:    d.Audits,
		anomalies: d.Anomalies,
		orch:      d.Orch,
		energy:    d.Energy,
		chat:      d.Chat,
		ready:     d.Ready,
		version:   d.Version,
	}

	r := chi.NewRouter()
	r.Use(a.logging)
	r.Use(SecurityHeaders)
	if d.RatePerSecond > 0 {
		r.Use(RateLimit(d.RateBurst, d.RatePerSecond))
	}
	r.Use(a.authGate)

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", a.login)
		r.Post("/auth/password/forgot", a.forgotPassword)
		r.Post("/auth/password/reset", a.resetPassword)

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(a.requireResource(auth.ResourceUserManagement))
			r.Get("/", a.listUsers)
			r.Post("/", a.createUser)
			r.Get("/{id}", a.getUser)
			r.Put("/{id}", a.updateUser)
			r.Delete("/{id}", a.deleteUser)
			r.Patch("/{id}/toggle-status", a.toggleUserStatus)
			r.Post("/{id}/change-password", a.changeUserPassword)
		})

		r.Route("/anomalies", func(r chi.Router) {
			r.With(a.requireResource(auth.ResourceAnomalyRead)).Get("/", a.listAnomalies)
			r.With(a.requireResource(auth.ResourceAnomalyCritical)).Get("/critical", a.criticalAnomalies)
			r.With(a.requireResource(auth.ResourceAnomalyRead)).Get("/stats", a.anomalyStats)
			r.With(a.requireResource(auth.ResourceAnomalyRead)).Get("/stats/period", a.anomalyStatsPeriod)
			r.With(a.requireResource(auth.ResourceAnomalyRead)).Get("/today", a.anomaliesToday)
			r.With(a.requireResource(auth.ResourceAnomalyRead)).Get("/by-date", a.anomaliesByDate)
			r.With(a.requireResource(auth.ResourceAnomalyRead)).Get("/water", a.waterAnomalies)
			r.With(a.requireResource(auth.ResourceAnomalyManage)).Post("/{id}/resolve", a.resolveAnomaly)
			r.With(a.requireResource(auth.ResourceAnomalyManage)).Post("/scan-now", a.scanNow)
			r.With(a.requireResource(auth.ResourceEnergyData)).Post("/validate-data", a.validateData)
		})

		r.Route("/admin/audit", func(r chi.Router) {
			r.Use(a.requireResource(auth.ResourceAuditRead))
			r.Get("/", a.queryAudit)
			r.Get("/search", a.queryAudit)
			r.With(a.requireResource(auth.ResourceUserActivity)).Get("/user-activity", a.userActivity)
			r.Get("/recent-modifications", a.recentModifications)
		})

		r.Route("/electricity", func(r chi.Router) {
			r.Use(a.requireResource(auth.ResourceEnergyData))
			r.Get("/", a.listElectricity)
			r.Post("/", a.createElectricity)
			r.Get("/{id}", a.getElectricity)
			r.Put("/{id}", a.updateElectricity)
			r.Delete("/{id}", a.deleteElectricity)
		})

		r.Route("/water", func(r chi.Router) {
			r.Use(a.requireResource(auth.ResourceEnergyData))
			r.Get("/", a.listWater)
			r.Post("/", a.createWater)
			r.Get("/{id}", a.getWater)
			r.Put("/{id}", a.updateWater)
			r.Delete("/{id}", a.deleteWater)
		})

		r.With(a.requireResource(auth.ResourceEnergyData)).Post("/chatbot/message", a.chatMessage)
	})

	a.router = r
	return a
}

// Handler wraps the router with HTTP metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "enerkpi-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
