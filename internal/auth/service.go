package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"enerkpi.org/internal/ids"
)

// Audit actions shared across services. Plain strings so that every package
// can record mutations without importing the audit implementation.
const (
	ActionCreate       = "CREATE"
	ActionUpdate       = "UPDATE"
	ActionDelete       = "DELETE"
	ActionUpdateStatus = "UPDATE_STATUS"
)

const resetTokenTTL = 24 * time.Hour

// AuditRecorder captures one audit record per mutation. Implementations must
// surface serialization and persistence failures instead of swallowing them.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityKind, entityID string, before, after any) error
}

// Mailer delivers outbound notifications. Delivery is an external
// collaborator; only the seam lives here.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// Service implements login and user management on top of a UserStore.
type Service struct {
	store  UserStore
	tokens *TokenService
	audit  AuditRecorder
	mailer Mailer
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(store UserStore, tokens *TokenService, recorder AuditRecorder, mailer Mailer, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		audit:  recorder,
		mailer: mailer,
		log:    log,
		now:    time.Now,
	}
}

// Login authenticates credentials and issues a session token. Unknown email,
// wrong password and disabled account all yield ErrBadCredentials so the
// response cannot be used as an account oracle.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", time.Time{}, nil, ErrBadCredentials
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil, ErrBadCredentials
		}
		return "", time.Time{}, nil, err
	}
	if !user.Active {
		return "", time.Time{}, nil, ErrBadCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", time.Time{}, nil, ErrBadCredentials
	}
	token, expiresAt, err := s.tokens.Generate(user)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	s.log.Info().Str("email", user.Email).Msg("login succeeded")
	return token, expiresAt, user, nil
}

// CreateUser registers an account and records the mutation.
func (s *Service) CreateUser(ctx context.Context, u *User, password string) (*User, error) {
	if u == nil {
		return nil, ErrInvalidInput
	}
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" || password == "" || strings.TrimSpace(u.FullName) == "" {
		return nil, ErrInvalidInput
	}
	if u.Role != RoleAdmin && u.Role != RoleUser {
		u.Role = RoleUser
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u.ID = ids.New()
	u.PasswordHash = hash
	u.Active = true
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, ActionCreate, "utilisateur", u.ID, nil, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser replaces mutable profile fields. The stored password hash,
// reset-token state and active flag survive a profile update; they move only
// through the dedicated flows.
func (s *Service) UpdateUser(ctx context.Context, u *User) (*User, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return nil, ErrInvalidInput
	}
	before, err := s.store.FindByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" {
		u.Email = before.Email
	}
	u.PasswordHash = before.PasswordHash
	u.ResetToken = before.ResetToken
	u.ResetTokenExpiry = before.ResetTokenExpiry
	u.Active = before.Active
	u.CreatedAt = before.CreatedAt
	u.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, ActionUpdate, "utilisateur", u.ID, before, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes an account. The audit record keeps the final snapshot;
// audit rows reference the actor with ON DELETE SET NULL so history survives.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	before, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	// Audit only once the row is actually gone.
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, ActionDelete, "utilisateur", id, before, nil)
}

// ToggleStatus flips the active flag.
func (s *Service) ToggleStatus(ctx context.Context, id string) (*User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	wasActive := user.Active
	user.Active = !user.Active
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	err = s.audit.Record(ctx, ActionUpdateStatus, "utilisateur", id,
		map[string]bool{"active": wasActive},
		map[string]bool{"active": user.Active})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword sets a new password for the account.
func (s *Service) ChangePassword(ctx context.Context, id, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidInput
	}
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	before := *user
	user.PasswordHash = hash
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}
	return s.audit.Record(ctx, ActionUpdate, "utilisateur", id, &before, user)
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// FindUser returns one account by id.
func (s *Service) FindUser(ctx context.Context, id string) (*User, error) {
	return s.store.FindByID(ctx, id)
}

// FindUserByEmail returns one account by email. The auth gate uses it to
// reload the principal on every request.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.FindByEmail(ctx, normalizeEmail(email))
}

// ForgotPassword issues a reset token valid for 24 hours and hands it to the
// mailer. Unknown emails return ErrNotFound; the handler keeps the outward
// reply uniform.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	expiry := s.now().UTC().Add(resetTokenTTL)
	user.ResetToken = uuid.NewString()
	user.ResetTokenExpiry = &expiry
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.ResetToken); err != nil {
		s.log.Error().Err(err).Str("email", user.Email).Msg("reset mail delivery failed")
		return err
	}
	return nil
}

// ResetPassword consumes a reset token. Expired tokens are inert but stay on
// the row until consumed by a successful reset.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return ErrResetTokenInvalid
	}
	user, err := s.store.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if user.ResetTokenExpiry == nil || !user.ResetTokenExpiry.After(s.now().UTC()) {
		return ErrResetTokenInvalid
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetTokenExpiry = nil
	user.UpdatedAt = s.now().UTC()
	return s.store.Update(ctx, user)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
