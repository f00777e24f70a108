package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"enerkpi.org/internal/auth"
	"enerkpi.org/internal/ids"
)

// Default query window applied when a caller gives no date range: one year
// back, one day forward. Keeps unfiltered scans bounded while staying
// permissive about clock skew on "now".
const (
	defaultLookback  = 365 * 24 * time.Hour
	defaultLookahead = 24 * time.Hour
)

// Record is one append-only audit row. ActorID goes null in the store when
// the referenced user is later deleted; ActorEmail is denormalized so the
// trail stays readable regardless.
type Record struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorEmail string          `json:"actor_email"`
	Action     string          `json:"action"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Origin     string          `json:"origin,omitempty"`
}

// Filter narrows a trail query. Zero values mean "any".
type Filter struct {
	Action     string
	EntityKind string
	ActorEmail string
	From       time.Time
	To         time.Time
}

// ActorActivity is an aggregate used by activity dashboards.
type ActorActivity struct {
	Email        string    `json:"email"`
	Count        int64     `json:"action_count"`
	LastActionAt time.Time `json:"last_action"`
}

// Store persists audit records. Append-only: no update or delete exists.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	Query(ctx context.Context, f Filter, limit, offset int) ([]Record, int64, error)
	ActivityByActor(ctx context.Context, since time.Time) ([]ActorActivity, error)
	RecentModifications(ctx context.Context, entityKind string, since time.Time) ([]Record, error)
}

// Service writes and reads the audit trail.
type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Record appends one audit row for a mutation. The actor comes from the
// request-scoped principal; a mutation without an authenticated actor is
// skipped, which is logged so the skip stays reviewable. Snapshot
// serialization failures and store failures are returned to the caller
// rather than swallowed.
func (s *Service) Record(ctx context.Context, action, entityKind, entityID string, before, after any) error {
	action = strings.TrimSpace(action)
	entityKind = strings.TrimSpace(entityKind)
	if action == "" || entityKind == "" {
		return errors.New("audit: action and entity kind are required")
	}
	actor, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		s.log.Warn().
			Str("action", action).
			Str("entity_kind", entityKind).
			Str("entity_id", entityID).
			Msg("mutation without authenticated actor, audit skipped")
		return nil
	}
	beforeJSON, err := marshalSnapshot(before)
	if err != nil {
		return fmt.Errorf("audit: serialize before state: %w", err)
	}
	afterJSON, err := marshalSnapshot(after)
	if err != nil {
		return fmt.Errorf("audit: serialize after state: %w", err)
	}
	rec := &Record{
		ID:         ids.New(),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		Before:     beforeJSON,
		After:      afterJSON,
		OccurredAt: s.now().UTC(),
		Origin:     originFromContext(ctx),
	}
	if err := s.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("audit: append record: %w", err)
	}
	return nil
}

// Query returns a page of the trail, newest first, plus the total match
// count. Page numbering starts at 0.
func (s *Service) Query(ctx context.Context, f Filter, page, size int) ([]Record, int64, error) {
	if size <= 0 || size > 200 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	now := s.now().UTC()
	if f.From.IsZero() {
		f.From = now.Add(-defaultLookback)
	}
	if f.To.IsZero() {
		f.To = now.Add(defaultLookahead)
	}
	return s.store.Query(ctx, f, size, page*size)
}

// RecentActivityByActor aggregates per-actor mutation counts since the given
// instant, most active first.
func (s *Service) RecentActivityByActor(ctx context.Context, since time.Time) ([]ActorActivity, error) {
	return s.store.ActivityByActor(ctx, since)
}

// RecentModifications lists the trail for one entity kind since the given
// instant, newest first.
func (s *Service) RecentModifications(ctx context.Context, entityKind string, since time.Time) ([]Record, error) {
	return s.store.RecentModifications(ctx, entityKind, since)
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

type originContextKey struct{}

// WithOrigin attaches the request origin address for audit records.
func WithOrigin(ctx context.Context, addr string) context.Context {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ctx
	}
	return context.WithValue(ctx, originContextKey{}, addr)
}

func originFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(originContextKey{}).(string); ok {
		return v
	}
	return ""
}
