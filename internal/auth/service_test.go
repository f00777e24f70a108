package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memUserStore struct {
	users map[string]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*User{}}
}

func (s *memUserStore) Create(_ context.Context, u *User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) FindByID(_ context.Context, id string) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) FindByResetToken(_ context.Context, token string) (*User, error) {
	for _, u := range s.users {
		if u.ResetToken != "" && u.ResetToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) List(_ context.Context) ([]*User, error) {
	var res []*User
	for _, u := range s.users {
		cp := *u
		res = append(res, &cp)
	}
	return res, nil
}

func (s *memUserStore) Update(_ context.Context, u *User) error {
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Delete(_ context.Context, id string) error {
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type recordedAudit struct {
	action     string
	entityKind string
	entityID   string
	before     any
	after      any
}

type memRecorder struct {
	records []recordedAudit
}

func (r *memRecorder) Record(_ context.Context, action, entityKind, entityID string, before, after any) error {
	r.records = append(r.records, recordedAudit{action, entityKind, entityID, before, after})
	return nil
}

type memMailer struct {
	sentTo    string
	sentToken string
}

func (m *memMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.sentTo = email
	m.sentToken = token
	return nil
}

func newTestService(t *testing.T) (*Service, *memUserStore, *memRecorder, *memMailer) {
	t.Helper()
	tokens, err := NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	store := newMemUserStore()
	recorder := &memRecorder{}
	mail := &memMailer{}
	return NewService(store, tokens, recorder, mail, zerolog.Nop()), store, recorder, mail
}

func mustCreate(t *testing.T, svc *Service, email, password, role string) *User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), &User{
		FullName: "Test User",
		Email:    email,
		Role:     role,
	}, password)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

func TestLoginSucceeds(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	mustCreate(t, svc, "admin@example.com", "s3cret", RoleAdmin)

	token, _, user, err := svc.Login(context.Background(), "ADMIN@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if user.Role != RoleAdmin {
		t.Fatalf("role = %q, want ADMIN", user.Role)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	u := mustCreate(t, svc, "user@example.com", "s3cret", RoleUser)

	if _, _, _, err := svc.Login(context.Background(), "nobody@example.com", "s3cret"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown email: got %v, want ErrBadCredentials", err)
	}
	if _, _, _, err := svc.Login(context.Background(), "user@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password: got %v, want ErrBadCredentials", err)
	}

	stored := store.users[u.ID]
	stored.Active = false
	if _, _, _, err := svc.Login(context.Background(), "user@example.com", "s3cret"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("disabled account: got %v, want ErrBadCredentials", err)
	}
}

func TestCreateUserDefaultsUnknownRole(t *testing.T) {
	svc, _, recorder, _ := newTestService(t)
	u := mustCreate(t, svc, "new@example.com", "pw", "SUPERVISOR")
	if u.Role != RoleUser {
		t.Fatalf("role = %q, want USER fallback", u.Role)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.action != ActionCreate || rec.entityKind != "utilisateur" {
		t.Fatalf("audit = %s/%s, want CREATE/utilisateur", rec.action, rec.entityKind)
	}
	if rec.before != nil {
		t.Fatal("CREATE audit must carry a null before state")
	}
}

func TestUpdateUserPreservesSensitiveFields(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	u := mustCreate(t, svc, "keep@example.com", "pw", RoleUser)

	expiry := time.Now().Add(time.Hour)
	stored := store.users[u.ID]
	stored.ResetToken = "tok-123"
	stored.ResetTokenExpiry = &expiry
	stored.Active = false
	hash := stored.PasswordHash

	updated, err := svc.UpdateUser(context.Background(), &User{
		ID:       u.ID,
		FullName: "Renamed",
		Email:    "keep@example.com",
		Role:     RoleAdmin,
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.PasswordHash != hash {
		t.Fatal("password hash must survive a profile update")
	}
	if updated.ResetToken != "tok-123" || updated.ResetTokenExpiry == nil {
		t.Fatal("reset token state must survive a profile update")
	}
	if updated.Active {
		t.Fatal("active flag must survive a profile update")
	}
	if updated.FullName != "Renamed" || updated.Role != RoleAdmin {
		t.Fatal("profile fields should be replaced")
	}
}

func TestToggleStatusRecordsSnapshots(t *testing.T) {
	svc, _, recorder, _ := newTestService(t)
	u := mustCreate(t, svc, "flip@example.com", "pw", RoleUser)
	recorder.records = nil

	toggled, err := svc.ToggleStatus(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ToggleStatus: %v", err)
	}
	if toggled.Active {
		t.Fatal("expected the account to be disabled")
	}
	if len(recorder.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.action != ActionUpdateStatus {
		t.Fatalf("action = %q, want UPDATE_STATUS", rec.action)
	}
	before, _ := rec.before.(map[string]bool)
	after, _ := rec.after.(map[string]bool)
	if !before["active"] || after["active"] {
		t.Fatalf("snapshots = %v -> %v, want active true -> false", before, after)
	}
}

func TestDeleteUserAuditsFinalSnapshot(t *testing.T) {
	svc, store, recorder, _ := newTestService(t)
	u := mustCreate(t, svc, "gone@example.com", "pw", RoleUser)
	recorder.records = nil

	if err := svc.DeleteUser(context.Background(), u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, ok := store.users[u.ID]; ok {
		t.Fatal("user should be deleted")
	}
	if len(recorder.records) != 1 || recorder.records[0].action != ActionDelete {
		t.Fatalf("expected one DELETE audit record, got %+v", recorder.records)
	}
	if recorder.records[0].after != nil {
		t.Fatal("DELETE audit must carry a null after state")
	}
}

type failingDeleteUserStore struct {
	*memUserStore
}

func (s *failingDeleteUserStore) Delete(context.Context, string) error {
	return errors.New("connection reset")
}

func TestDeleteUserFailureLeavesNoAudit(t *testing.T) {
	svc, store, recorder, _ := newTestService(t)
	u := mustCreate(t, svc, "sticky@example.com", "pw", RoleUser)
	recorder.records = nil

	tokens, err := NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	failing := NewService(&failingDeleteUserStore{store}, tokens, recorder, &memMailer{}, zerolog.Nop())
	if err := failing.DeleteUser(context.Background(), u.ID); err == nil {
		t.Fatal("expected the store failure to propagate")
	}
	if len(recorder.records) != 0 {
		t.Fatalf("audit records = %+v, want none for a failed delete", recorder.records)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	svc, store, _, mail := newTestService(t)
	u := mustCreate(t, svc, "reset@example.com", "old-pw", RoleUser)

	if err := svc.ForgotPassword(context.Background(), "reset@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if mail.sentTo != "reset@example.com" || mail.sentToken == "" {
		t.Fatalf("mailer got %q/%q, want email and token", mail.sentTo, mail.sentToken)
	}
	stored := store.users[u.ID]
	if stored.ResetToken != mail.sentToken {
		t.Fatal("stored token must match the mailed token")
	}
	if stored.ResetTokenExpiry == nil || time.Until(*stored.ResetTokenExpiry) > 24*time.Hour {
		t.Fatal("reset token should expire within 24 hours")
	}

	if err := svc.ResetPassword(context.Background(), mail.sentToken, "new-pw"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, _, _, err := svc.Login(context.Background(), "reset@example.com", "new-pw"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	// The token is consumed by a successful reset.
	if err := svc.ResetPassword(context.Background(), mail.sentToken, "again"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("reused token: got %v, want ErrResetTokenInvalid", err)
	}
}

func TestResetPasswordRejectsExpiredToken(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	u := mustCreate(t, svc, "late@example.com", "pw", RoleUser)

	expired := time.Now().Add(-time.Minute)
	stored := store.users[u.ID]
	stored.ResetToken = "stale-token"
	stored.ResetTokenExpiry = &expired

	if err := svc.ResetPassword(context.Background(), "stale-token", "new-pw"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expired token: got %v, want ErrResetTokenInvalid", err)
	}
}
