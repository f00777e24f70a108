package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"enerkpi.org/internal/anomaly"
	"enerkpi.org/internal/anomaly/scorer"
	"enerkpi.org/internal/audit"
	"enerkpi.org/internal/auth"
	"enerkpi.org/internal/chatbot"
	"enerkpi.org/internal/chatbot/nlu"
	"enerkpi.org/internal/energy"
	"enerkpi.org/internal/mailer"
)

// In-memory stores backing the full HTTP stack under test.

type memUserStore struct {
	users    map[string]*auth.User
	findFail error
}

func (s *memUserStore) Create(_ context.Context, u *auth.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrAlreadyExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.findFail != nil {
		return nil, s.findFail
	}
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) FindByResetToken(_ context.Context, token string) (*auth.User, error) {
	for _, u := range s.users {
		if u.ResetToken != "" && u.ResetToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) List(_ context.Context) ([]*auth.User, error) {
	var res []*auth.User
	for _, u := range s.users {
		cp := *u
		res = append(res, &cp)
	}
	return res, nil
}

func (s *memUserStore) Update(_ context.Context, u *auth.User) error {
	if _, ok := s.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Delete(_ context.Context, id string) error {
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type memAuditStore struct {
	appended []audit.Record
}

func (s *memAuditStore) Append(_ context.Context, rec *audit.Record) error {
	s.appended = append(s.appended, *rec)
	return nil
}

func (s *memAuditStore) Query(context.Context, audit.Filter, int, int) ([]audit.Record, int64, error) {
	return s.appended, int64(len(s.appended)), nil
}

func (s *memAuditStore) ActivityByActor(context.Context, time.Time) ([]audit.ActorActivity, error) {
	return nil, nil
}

func (s *memAuditStore) RecentModifications(context.Context, string, time.Time) ([]audit.Record, error) {
	return nil, nil
}

type memAnomalyStore struct {
	rows map[string]*anomaly.Anomaly
}

func (s *memAnomalyStore) Insert(_ context.Context, a *anomaly.Anomaly) (bool, error) {
	cp := *a
	s.rows[a.ID] = &cp
	return true, nil
}

func (s *memAnomalyStore) FindByID(_ context.Context, id string) (*anomaly.Anomaly, error) {
	a, ok := s.rows[id]
	if !ok {
		return nil, anomaly.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAnomalyStore) List(_ context.Context, resolved bool) ([]anomaly.Anomaly, error) {
	var res []anomaly.Anomaly
	for _, a := range s.rows {
		if a.Resolved == resolved {
			res = append(res, *a)
		}
	}
	return res, nil
}

func (s *memAnomalyStore) ListCriticalActive(context.Context, float64) ([]anomaly.Anomaly, error) {
	return nil, nil
}
func (s *memAnomalyStore) ListByDay(context.Context, time.Time) ([]anomaly.Anomaly, error) {
	return nil, nil
}
func (s *memAnomalyStore) ListWater(context.Context, int, int) ([]anomaly.Anomaly, error) {
	return nil, nil
}
func (s *memAnomalyStore) ListCriticalSince(context.Context, float64, time.Time) ([]anomaly.Anomaly, error) {
	return nil, nil
}
func (s *memAnomalyStore) CountActive(context.Context) (int64, error) { return 0, nil }
func (s *memAnomalyStore) CountActiveSince(context.Context, time.Time) (int64, error) { return 0, nil }
func (s *memAnomalyStore) CountCriticalSince(context.Context, float64, time.Time) (int64, error) {
	return 0, nil
}
func (s *memAnomalyStore) LatestDetection(context.Context) (time.Time, error) {
	return time.Time{}, nil
}
func (s *memAnomalyStore) Update(_ context.Context, a *anomaly.Anomaly) error {
	if _, ok := s.rows[a.ID]; !ok {
		return anomaly.ErrNotFound
	}
	cp := *a
	s.rows[a.ID] = &cp
	return nil
}

type memEnergyStore struct {
	electricity map[string]*energy.ElectricityData
}

func (s *memEnergyStore) CreateElectricity(_ context.Context, d *energy.ElectricityData) error {
	cp := *d
	s.electricity[d.ID] = &cp
	return nil
}
func (s *memEnergyStore) FindElectricity(_ context.Context, id string) (*energy.ElectricityData, error) {
	d, ok := s.electricity[id]
	if !ok {
		return nil, energy.ErrNotFound
	}
	cp := *d
	return &cp, nil
}
func (s *memEnergyStore) ListElectricity(context.Context) ([]energy.ElectricityData, error) {
	var res []energy.ElectricityData
	for _, d := range s.electricity {
		res = append(res, *d)
	}
	return res, nil
}
func (s *memEnergyStore) UpdateElectricity(context.Context, *energy.ElectricityData) error {
	return nil
}
func (s *memEnergyStore) DeleteElectricity(_ context.Context, id string) error {
	delete(s.electricity, id)
	return nil
}
func (s *memEnergyStore) CreateWater(context.Context, *energy.WaterData) error { return nil }
func (s *memEnergyStore) FindWater(context.Context, string) (*energy.WaterData, error) {
	return nil, energy.ErrNotFound
}
func (s *memEnergyStore) ListWater(context.Context) ([]energy.WaterData, error) { return nil, nil }
func (s *memEnergyStore) UpdateWater(context.Context, *energy.WaterData) error { return nil }
func (s *memEnergyStore) DeleteWater(context.Context, string) error { return nil }

type testEnv struct {
	api       *API
	users     *auth.Service
	userStore *memUserStore
	admin     *auth.User
	user      *auth.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	tokens, err := auth.NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	userStore := &memUserStore{users: map[string]*auth.User{}}
	audits := audit.NewService(&memAuditStore{}, log)
	users := auth.NewService(userStore, tokens, audits, mailer.NewLogMailer(log), log)

	anomalyStore := &memAnomalyStore{rows: map[string]*anomaly.Anomaly{}}
	anomalies := anomaly.NewService(anomalyStore, audits, log)
	energyStore := &memEnergyStore{electricity: map[string]*energy.ElectricityData{}}
	energySvc := energy.NewService(energyStore, audits, log)

	sc := scorer.New("http://127.0.0.1:1", 50*time.Millisecond)
	orch := anomaly.NewOrchestrator(anomalyStore, energyStore, sc, log)

	interp := nlu.New("http://127.0.0.1:1", 50*time.Millisecond)
	chat := chatbot.NewRouter(interp, anomalies, audits, energySvc, log)

	api := New(Deps{
		Log:       log,
		Users:     users,
		Tokens:    tokens,
		Audits:    audits,
		Anomalies: anomalies,
		Orch:      orch,
		Energy:    energySvc,
		Chat:      chat,
		Version:   "test",
	})

	ctx := context.Background()
	admin, err := users.CreateUser(ctx, &auth.User{
		FullName: "Admin", Email: "admin@example.com", Role: auth.RoleAdmin,
	}, "admin-pw")
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	user, err := users.CreateUser(ctx, &auth.User{
		FullName: "User", Email: "user@example.com", Role: auth.RoleUser,
	}, "user-pw")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return &testEnv{api: api, users: users, userStore: userStore, admin: admin, user: user}
}

func (e *testEnv) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) loginToken(t *testing.T, email, password string) string {
	t.Helper()
	token, _, _, err := e.users.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return token
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"admin@example.com","password":"admin-pw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Token string     `json:"token"`
		User  *auth.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" || resp.User == nil || resp.User.Role != auth.RoleAdmin {
		t.Fatalf("unexpected login response: %s", rec.Body)
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Fatal("password hash must never be serialized")
	}

	rec = env.request(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"admin@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d, want 401", rec.Code)
	}
}

func TestGateRejectsMissingAndInvalidTokens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/admin/users", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/admin/users", "garbage-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token: status = %d, want 401", rec.Code)
	}
}

func TestGateReloadsPrincipal(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginToken(t, "user@example.com", "user-pw")

	// Token stays valid but the account is disabled afterwards.
	stored := env.userStore.users[env.user.ID]
	stored.Active = false
	rec := env.request(t, http.MethodGet, "/api/electricity", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disabled account: status = %d, want 403", rec.Code)
	}

	// And a deleted account is an unknown subject.
	delete(env.userStore.users, env.user.ID)
	rec = env.request(t, http.MethodGet, "/api/electricity", token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("deleted account: status = %d, want 401", rec.Code)
	}
}

func TestGateSurfacesStoreOutage(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginToken(t, "user@example.com", "user-pw")

	// A store outage during principal reload is not an auth failure.
	env.userStore.findFail = errors.New("connection refused")
	rec := env.request(t, http.MethodGet, "/api/electricity", token, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("store outage: status = %d, want 500: %s", rec.Code, rec.Body)
	}
}

func TestEnergyRecordLookup(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.loginToken(t, "user@example.com", "user-pw")

	rec := env.request(t, http.MethodPost, "/api/electricity", userToken,
		`{"year":2026,"month":3,"network60kv_active_energy":800}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body)
	}
	var created energy.ElectricityData
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = env.request(t, http.MethodGet, "/api/electricity/"+created.ID, userToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var got energy.ElectricityData
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != created.ID || got.Year != 2026 {
		t.Fatalf("got %+v, want the created record", got)
	}

	rec = env.request(t, http.MethodGet, "/api/electricity/missing", userToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing electricity: status = %d, want 404", rec.Code)
	}
	rec = env.request(t, http.MethodGet, "/api/water/missing", userToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing water: status = %d, want 404", rec.Code)
	}
}

func TestRolePolicyOnRoutes(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.loginToken(t, "admin@example.com", "admin-pw")
	userToken := env.loginToken(t, "user@example.com", "user-pw")

	rec := env.request(t, http.MethodGet, "/api/anomalies", userToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("USER on anomalies: status = %d, want 403", rec.Code)
	}
	rec = env.request(t, http.MethodGet, "/api/anomalies", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ADMIN on anomalies: status = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = env.request(t, http.MethodGet, "/api/admin/audit", userToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("USER on audit: status = %d, want 403", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/electricity", userToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("USER on electricity: status = %d, want 200", rec.Code)
	}
}

func TestValidateDataFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.loginToken(t, "user@example.com", "user-pw")

	// The scorer is unreachable in tests; the check must answer clean.
	rec := env.request(t, http.MethodPost, "/api/anomalies/validate-data", userToken,
		`{"data_type":"electricity","year":2026,"month":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["is_anomaly"] {
		t.Fatal("an unreachable scorer must report not-anomalous")
	}
}

func TestChatbotDegradesWithoutNLU(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.loginToken(t, "user@example.com", "user-pw")

	rec := env.request(t, http.MethodPost, "/api/chatbot/message", userToken,
		`{"message":"bonjour"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var reply chatbot.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Type != "text" || reply.Response == "" {
		t.Fatalf("reply = %+v, want a text fallback", reply)
	}
}

func TestUserManagementEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.loginToken(t, "admin@example.com", "admin-pw")

	rec := env.request(t, http.MethodPost, "/api/admin/users", adminToken,
		`{"full_name":"New Agent","email":"agent@example.com","password":"pw","role":"USER","department":"Exploitation"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body)
	}
	var created auth.User
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = env.request(t, http.MethodPost, "/api/admin/users", adminToken,
		`{"full_name":"Dup","email":"agent@example.com","password":"pw"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email: status = %d, want 409", rec.Code)
	}

	rec = env.request(t, http.MethodPatch, "/api/admin/users/"+created.ID+"/toggle-status", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status = %d: %s", rec.Code, rec.Body)
	}
	var toggled auth.User
	if err := json.Unmarshal(rec.Body.Bytes(), &toggled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if toggled.Active {
		t.Fatal("toggle should disable the fresh account")
	}

	rec = env.request(t, http.MethodDelete, "/api/admin/users/"+created.ID, adminToken, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", rec.Code)
	}
	rec = env.request(t, http.MethodDelete, "/api/admin/users/"+created.ID, adminToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", rec.Code)
	}
}
