// Package chatbot routes interpreted chat intents to data queries. The HTTP
// layer cannot gate the single generic message endpoint per resource, so
// every sensitive handler re-checks the role policy itself and answers with
// a permission-denied reply instead of an error.
package chatbot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"enerkpi.org/internal/anomaly"
	"enerkpi.org/internal/audit"
	"enerkpi.org/internal/auth"
	"enerkpi.org/internal/chatbot/nlu"
	"enerkpi.org/internal/energy"
)

const (
	fallbackText = "Je n'ai pas compris votre demande."
	deniedText   = "Désolé, seuls les administrateurs peuvent accéder à ces informations."
)

// Reply is the answer returned to the chat widget.
type Reply struct {
	Response string         `json:"response"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
}

func textReply(msg string) Reply { return Reply{Response: msg, Type: "text"} }
func errorReply(msg string) Reply { return Reply{Response: msg, Type: "error"} }
func dataReply(msg string, data map[string]any) Reply {
	return Reply{Response: msg, Type: "data", Data: data}
}

// Interpreter abstracts the NLU collaborator.
type Interpreter interface {
	Interpret(ctx context.Context, sender, message string, extra map[string]any) ([]nlu.Response, error)
}

type handlerFunc func(ctx context.Context, principal *auth.User, entities map[string]any) Reply

// Router dispatches intents through a fixed registry. Unknown intents fall
// through to the NLU's own free-text reply.
type Router struct {
	nlu       Interpreter
	anomalies *anomaly.Service
	audits    *audit.Service
	energy    *energy.Service
	log       zerolog.Logger
	now       func() time.Time
	handlers  map[string]handlerFunc
}

func NewRouter(interp Interpreter, anomalies *anomaly.Service, audits *audit.Service, energySvc *energy.Service, log zerolog.Logger) *Router {
	r := &Router{
		nlu:       interp,
		anomalies: anomalies,
		audits:    audits,
		energy:    energySvc,
		log:       log,
		now:       time.Now,
	}
	r.handlers = map[string]handlerFunc{
		"ask_anomalies_today":    r.anomaliesToday,
		"ask_water_anomalies":    r.waterAnomalies,
		"ask_critical_anomalies": r.criticalAnomalies,
		"ask_user_activity":      r.userActivity,
		"ask_data_modifications": r.dataModifications,
		"ask_consumption_data":   r.consumptionData,
		"ask_comparison":         r.comparison,
	}
	return r
}

// Process interprets the message and dispatches the resulting intent. An
// unreachable NLU degrades to the generic fallback reply, never an error.
func (r *Router) Process(ctx context.Context, principal *auth.User, sessionID, message string, extra map[string]any) Reply {
	responses, err := r.nlu.Interpret(ctx, sessionID, message, extra)
	if err != nil {
		r.log.Warn().Err(err).Msg("nlu unavailable, falling back to generic reply")
		return textReply(fallbackText)
	}
	intent, entities, text := extract(responses)
	handler, ok := r.handlers[intent]
	if !ok {
		if text != "" {
			return textReply(text)
		}
		return textReply(fallbackText)
	}
	return handler(ctx, principal, entities)
}

func extract(responses []nlu.Response) (intent string, entities map[string]any, text string) {
	entities = map[string]any{}
	for _, resp := range responses {
		if text == "" && resp.Text != "" {
			text = resp.Text
		}
		if resp.Metadata == nil {
			continue
		}
		if intent == "" {
			intent = resp.Metadata.Intent
		}
		for k, v := range resp.Metadata.Entities {
			entities[k] = v
		}
	}
	return intent, entities, text
}

func (r *Router) anomaliesToday(ctx context.Context, principal *auth.User, _ map[string]any) Reply {
	if !auth.Allow(principal.Role, auth.ResourceAnomalyRead) {
		return errorReply(deniedText)
	}
	today := r.now().UTC()
	anomalies, err := r.anomalies.AnomaliesByDay(ctx, today)
	if err != nil {
		return errorReply("La recherche d'anomalies a échoué.")
	}
	return dataReply("Anomalies détectées aujourd'hui:", map[string]any{
		"anomalies": anomalies,
		"count":     len(anomalies),
		"date":      today.Format("2006-01-02"),
	})
}

func (r *Router) waterAnomalies(ctx context.Context, principal *auth.User, entities map[string]any) Reply {
	if !auth.Allow(principal.Role, auth.ResourceAnomalyRead) {
		return errorReply(deniedText)
	}
	month := intEntity(entities, "month")
	year := intEntity(entities, "year")
	anomalies, err := r.anomalies.WaterAnomalies(ctx, month, year)
	if err != nil {
		return errorReply("La recherche d'anomalies a échoué.")
	}
	data := map[string]any{
		"anomalies": anomalies,
		"count":     len(anomalies),
		"type":      anomaly.SourceWater,
	}
	if month != 0 {
		data["month"] = month
	}
	if year != 0 {
		data["year"] = year
	}
	return dataReply("Anomalies d'eau:", data)
}

func (r *Router) criticalAnomalies(ctx context.Context, principal *auth.User, entities map[string]any) Reply {
	if !auth.Allow(principal.Role, auth.ResourceAnomalyCritical) {
		return errorReply(deniedText)
	}
	period := stringEntity(entities, "period", "week")
	since := r.anomalies.PeriodStart(period)
	anomalies, err := r.anomalies.CriticalSince(ctx, since)
	if err != nil {
		return errorReply("La recherche d'anomalies a échoué.")
	}
	return dataReply("Anomalies critiques:", map[string]any{
		"anomalies":  anomalies,
		"count":      len(anomalies),
		"period":     period,
		"start_date": since.Format(time.RFC3339),
	})
}

func (r *Router) userActivity(ctx context.Context, principal *auth.User, entities map[string]any) Reply {
	if !auth.Allow(principal.Role, auth.ResourceUserActivity) {
		return errorReply(deniedText)
	}
	period := stringEntity(entities, "period", "month")
	since := r.anomalies.PeriodStart(period)
	activity, err := r.audits.RecentActivityByActor(ctx, since)
	if err != nil {
		return errorReply("La recherche d'activité a échoué.")
	}
	return dataReply("Activité des utilisateurs:", map[string]any{
		"activity":   activity,
		"period":     period,
		"start_date": since.Format(time.RFC3339),
	})
}

func (r *Router) dataModifications(ctx context.Context, principal *auth.User, entities map[string]any) Reply {
	if !auth.Allow(principal.Role, auth.ResourceAuditRead) {
		return errorReply(deniedText)
	}
	kind := energy.KindElectricity
	if stringEntity(entities, "data_type", "electricity") == "water" {
		kind = energy.KindWater
	}
	days := intEntity(entities, "days")
	if days <= 0 {
		days = 7
	}
	since := r.now().UTC().AddDate(0, 0, -days)
	mods, err := r.audits.RecentModifications(ctx, kind, since)
	if err != nil {
		return errorReply("La recherche de modifications a échoué.")
	}
	return dataReply("Dernières modifications:", map[string]any{
		"modifications": mods,
		"data_type":     kind,
		"days":          days,
		"since":         since.Format(time.RFC3339),
	})
}

func (r *Router) consumptionData(ctx context.Context, principal *auth.User, entities map[string]any) Reply {
	if !auth.Allow(principal.Role, auth.ResourceEnergyData) {
		return errorReply(deniedText)
	}
	summary, err := r.energy.ConsumptionSummary(ctx, intEntity(entities, "month"), intEntity(entities, "year"))
	if err != nil {
		return errorReply("La recherche de consommation a échoué.")
	}
	return dataReply("Données de consommation:", summary)
}

func (r *Router) comparison(ctx context.Context, principal *auth.User, entities map[string]any) Reply {
	if !auth.Allow(principal.Role, auth.ResourceEnergyData) {
		return errorReply(deniedText)
	}
	year1 := intEntity(entities, "year1")
	year2 := intEntity(entities, "year2")
	if year1 == 0 || year2 == 0 {
		return textReply("Précisez les deux années à comparer.")
	}
	data, err := r.energy.YearComparison(ctx, year1, year2)
	if err != nil {
		return errorReply("La comparaison a échoué.")
	}
	return dataReply("Comparaison des données:", data)
}

// intEntity reads a numeric entity; NLU payloads arrive as JSON so numbers
// decode as float64.
func intEntity(entities map[string]any, key string) int {
	switch v := entities[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func stringEntity(entities map[string]any, key, fallback string) string {
	if v, ok := entities[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
