package incubator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"flarehub/cmd/identity"
	authapi "flarehub/cmd/internal/auth/api"
	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/notify"
	"flarehub/cmd/internal/storage"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (m *recordingMailer) Send(_ context.Context, e notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return nil
}

func (m *recordingMailer) all() []notify.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Email(nil), m.sent...)
}

type fixture struct {
	*httptest.Server
	kv     *storage.MemoryKV
	repo   *identity.KVRepository
	mailer *recordingMailer
	header string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := discardLogger()
	kv := storage.NewMemoryKV()
	repo, err := identity.NewKVRepository(kv, identity.WithLogger(log))
	if err != nil {
		t.Fatalf("NewKVRepository: %v", err)
	}

	sessCfg := session.DefaultConfig()
	sessCfg.Latency = 0
	tokens, err := session.NewClientTokenManager(sessCfg)
	if err != nil {
		t.Fatalf("NewClientTokenManager: %v", err)
	}
	authCfg := authapi.DefaultConfig()
	auth, err := authapi.NewHandler(log, authCfg, sessCfg, repo, tokens)
	if err != nil {
		t.Fatalf("authapi.NewHandler: %v", err)
	}

	mailer := &recordingMailer{}
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc, err := NewService(kv, repo, mailer, WithLogger(log), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h, err := NewHandler(log, svc, auth)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	auth.Register(mux)
	h.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &fixture{Server: ts, kv: kv, repo: repo, mailer: mailer, header: authCfg.ClientTokenHeader}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	out, _ := io.ReadAll(res.Body)
	return res, out
}

// login returns a client token authenticated as email.
func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()

	res, body := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, res.StatusCode, body)
	}
	tok := res.Header.Get(f.header)
	if tok == "" {
		t.Fatalf("login %s: no client token", email)
	}
	return tok
}

func validApplication() ApplyInput {
	return ApplyInput{
		StartupName:     "Acme",
		Description:     "Solar irrigation",
		Sector:          "agriculture",
		Stage:           StagePrototype,
		TeamSize:        "4",
		Location:        "nairobi",
		FounderName:     "Ann",
		Email:           "ann@acme.test",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %T: %v (%s)", v, err, b)
	}
	return v
}

func TestIncubator_ApplyReviewFlow(t *testing.T) {
	f := newFixture(t)

	res, body := f.do(t, http.MethodPost, "/apply", "", validApplication())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("apply: expected 201, got %d: %s", res.StatusCode, body)
	}
	applied := decode[applyResponse](t, body)
	if applied.Application.Status != StatusPending || applied.Application.SubmittedDate != "2026-03-14" {
		t.Fatalf("unexpected application %+v", applied.Application)
	}
	if !strings.HasPrefix(applied.Application.ID, applicationIDPrefix) {
		t.Fatalf("unexpected application id %q", applied.Application.ID)
	}
	if !identity.AwaitingApproval(applied.User.Role) || applied.Redirect != guard.PendingPath {
		t.Fatalf("expected unapproved applicant redirected to pending, got %+v", applied)
	}
	applicant := res.Header.Get(f.header)

	// Unapproved applicant: dashboard dispatches to pending, admin API is guarded.
	res, _ = f.do(t, http.MethodGet, "/dashboard", applicant, nil)
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != guard.PendingPath {
		t.Fatalf("dashboard: expected pending redirect, got %d %q", res.StatusCode, res.Header.Get("Location"))
	}
	res, body = f.do(t, http.MethodGet, "/dashboard/pending", applicant, nil)
	if res.StatusCode != http.StatusOK || !decode[pendingView](t, body).AwaitingApproval {
		t.Fatalf("pending: got %d %s", res.StatusCode, body)
	}
	res, _ = f.do(t, http.MethodGet, "/api/applications", applicant, nil)
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != guard.PendingPath {
		t.Fatalf("admin api: expected pending redirect, got %d", res.StatusCode)
	}

	admin := f.login(t, "admin@flarehub.com")
	res, body = f.do(t, http.MethodGet, "/api/applications", admin, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, body)
	}
	if apps := decode[applicationsResponse](t, body).Applications; len(apps) != 1 || apps[0].ID != applied.Application.ID {
		t.Fatalf("unexpected applications %+v", apps)
	}

	res, body = f.do(t, http.MethodGet, "/api/applications/"+applied.Application.ID, admin, nil)
	if res.StatusCode != http.StatusOK || decode[Application](t, body).StartupName != "Acme" {
		t.Fatalf("get: %d %s", res.StatusCode, body)
	}

	res, body = f.do(t, http.MethodPost, "/api/applications/"+applied.Application.ID+"/approve", admin, nil)
	if res.StatusCode != http.StatusOK || decode[Application](t, body).Status != StatusApproved {
		t.Fatalf("approve: %d %s", res.StatusCode, body)
	}
	res, _ = f.do(t, http.MethodPost, "/api/applications/"+applied.Application.ID+"/approve", admin, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second approve: expected 409, got %d", res.StatusCode)
	}

	// The applicant's next request restores the promoted record.
	res, body = f.do(t, http.MethodGet, "/dashboard", applicant, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard after approval: %d %s", res.StatusCode, body)
	}
	ov := decode[startupOverview](t, body)
	if ov.View != "startup" || len(ov.Applications) != 1 {
		t.Fatalf("unexpected overview %+v", ov)
	}

	sent := f.mailer.all()
	if len(sent) != 2 {
		t.Fatalf("expected 2 emails, got %+v", sent)
	}
	if sent[0].Subject != "Application Received" || sent[0].To != "ann@acme.test" {
		t.Fatalf("unexpected confirmation %+v", sent[0])
	}
	if sent[1].Subject != "Application Approved!" || !strings.Contains(sent[1].Body, "Acme") {
		t.Fatalf("unexpected approval %+v", sent[1])
	}
}

func TestIncubator_Reject(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/apply", "", validApplication())
	appID := decode[applyResponse](t, body).Application.ID
	admin := f.login(t, "admin@flarehub.com")

	res, body := f.do(t, http.MethodPost, "/api/applications/"+appID+"/reject", admin, map[string]string{"comments": "Too early"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject: %d %s", res.StatusCode, body)
	}
	got := decode[Application](t, body)
	if got.Status != StatusRejected || got.Comments != "Too early" {
		t.Fatalf("unexpected application %+v", got)
	}

	sent := f.mailer.all()
	last := sent[len(sent)-1]
	if last.Subject != "Application Update" || !strings.HasSuffix(last.Body, "\n\nComments: Too early") {
		t.Fatalf("unexpected rejection email %+v", last)
	}

	// Rejection does not change the founder's role.
	id, ok, err := f.repo.FindByEmail(context.Background(), "ann@acme.test")
	if err != nil || !ok || !identity.AwaitingApproval(id.Role) {
		t.Fatalf("expected founder still awaiting approval, got %+v ok=%v err=%v", id, ok, err)
	}
}

func TestIncubator_RejectWithoutBody(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/apply", "", validApplication())
	appID := decode[applyResponse](t, body).Application.ID
	admin := f.login(t, "admin@flarehub.com")

	res, body := f.do(t, http.MethodPost, "/api/applications/"+appID+"/reject", admin, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject: %d %s", res.StatusCode, body)
	}
	sent := f.mailer.all()
	if strings.Contains(sent[len(sent)-1].Body, "Comments:") {
		t.Fatalf("expected no comments paragraph")
	}
}

func TestIncubator_UnknownApplication(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "admin@flarehub.com")

	for _, path := range []string{"/api/applications/APPnope", "/api/applications/APPnope/approve"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "/approve") {
			method = http.MethodPost
		}
		res, _ := f.do(t, method, path, admin, nil)
		if res.StatusCode != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", method, path, res.StatusCode)
		}
	}
}

func TestIncubator_ApplyValidation(t *testing.T) {
	f := newFixture(t)

	in := validApplication()
	in.ConfirmPassword = "different"
	in.Password = "123"
	res, body := f.do(t, http.MethodPost, "/apply", "", in)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	var envelope struct {
		Error struct {
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	for _, field := range []string{"password", "confirmPassword"} {
		if _, ok := envelope.Error.Fields[field]; !ok {
			t.Fatalf("expected %s field error, got %v", field, envelope.Error.Fields)
		}
	}

	if _, ok, _ := f.kv.Get(context.Background(), storage.SharedNamespace, storage.KeyApplications); ok {
		t.Fatalf("invalid application must not be stored")
	}
	if len(f.mailer.all()) != 0 {
		t.Fatalf("invalid application must not send email")
	}
}

func TestIncubator_Users(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "admin@flarehub.com")

	res, body := f.do(t, http.MethodPost, "/api/users", admin, CreateUserInput{
		Name: "Mo Mentor", Email: "mo@flarehub.com", Role: "mentor", Status: "Active",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, body)
	}
	created := decode[identity.Identity](t, body)
	if _, ok := created.Role.(identity.Mentor); !ok || !created.Approved() {
		t.Fatalf("unexpected user %+v", created)
	}

	res, body = f.do(t, http.MethodGet, "/api/users", admin, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", res.StatusCode)
	}
	users := decode[usersResponse](t, body).Users
	if len(users) != 1 || users[0].Email != "mo@flarehub.com" {
		t.Fatalf("unexpected users %+v", users)
	}

	res, _ = f.do(t, http.MethodPost, "/api/users", admin, CreateUserInput{Name: "X", Email: "x@x.com", Role: "owner"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role: expected 400, got %d", res.StatusCode)
	}

	startup := f.login(t, "startup@example.com")
	res, _ = f.do(t, http.MethodGet, "/api/users", startup, nil)
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != guard.DashboardPath {
		t.Fatalf("startup on admin route: expected dashboard redirect, got %d", res.StatusCode)
	}
}

func TestIncubator_CreateUserKeepsFormOnlyFieldsOut(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "admin@flarehub.com")

	res, body := f.do(t, http.MethodPost, "/api/users", admin, CreateUserInput{
		Name: "Ivy", Email: "ivy@flarehub.com", Role: "startup", Password: "hunter22-secret", Status: "Inactive",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, body)
	}
	if created := decode[identity.Identity](t, body); !created.Approved() {
		t.Fatalf("created users are always approved, got %+v", created)
	}

	raw, ok, err := f.kv.Get(context.Background(), storage.SharedNamespace, storage.KeyUsers)
	if err != nil || !ok {
		t.Fatalf("users key: ok=%v err=%v", ok, err)
	}
	for _, leaked := range []string{"hunter22-secret", "Inactive", `"password"`, `"status"`} {
		if strings.Contains(string(raw), leaked) {
			t.Fatalf("stored users contain %q: %s", leaked, raw)
		}
	}

	res, _ = f.do(t, http.MethodPost, "/api/users", admin, CreateUserInput{
		Name: "Ned", Email: "ned@flarehub.com", Role: "startup", Status: "Suspended",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", res.StatusCode)
	}
}

func TestIncubator_Opportunities(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "admin@flarehub.com")

	_, body := f.do(t, http.MethodPost, "/api/users", admin, CreateUserInput{Name: "Mo", Email: "mo@flarehub.com", Role: "mentor"})
	mentorID := decode[identity.Identity](t, body).ID
	mentor := f.login(t, "mo@flarehub.com")

	res, body := f.do(t, http.MethodPost, "/api/opportunities", mentor, OpportunityInput{
		Title: "Demo Day", Type: "Event", Description: "Pitch", Deadline: "2026-04-01", ShareWithAll: true,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, body)
	}
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	if raw["sharedWith"] != "All" || raw["shared"] != true || raw["createdBy"] != mentorID {
		t.Fatalf("unexpected wire layout %v", raw)
	}

	res, body = f.do(t, http.MethodPost, "/api/opportunities", mentor, OpportunityInput{
		Title: "Grant", Type: "Funding", Description: "Seed grant", Startups: []string{"2"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create targeted: %d %s", res.StatusCode, body)
	}

	res, body = f.do(t, http.MethodGet, "/api/opportunities", mentor, nil)
	if res.StatusCode != http.StatusOK || len(decode[opportunitiesResponse](t, body).Opportunities) != 2 {
		t.Fatalf("list: %d %s", res.StatusCode, body)
	}

	res, body = f.do(t, http.MethodGet, "/dashboard", mentor, nil)
	if res.StatusCode != http.StatusOK || len(decode[mentorOverview](t, body).Opportunities) != 2 {
		t.Fatalf("mentor dashboard: %d %s", res.StatusCode, body)
	}

	// Seed startup (id 2) sees both; the admin route guard sends admins home.
	startup := f.login(t, "startup@example.com")
	res, body = f.do(t, http.MethodGet, "/dashboard", startup, nil)
	if res.StatusCode != http.StatusOK || len(decode[startupOverview](t, body).Opportunities) != 2 {
		t.Fatalf("startup dashboard: %d %s", res.StatusCode, body)
	}
	res, _ = f.do(t, http.MethodGet, "/api/opportunities", admin, nil)
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != guard.DashboardPath {
		t.Fatalf("admin on mentor route: expected dashboard redirect, got %d", res.StatusCode)
	}

	res, _ = f.do(t, http.MethodPost, "/api/opportunities", mentor, OpportunityInput{Title: "X", Type: "Party", Description: "d"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type: expected 400, got %d", res.StatusCode)
	}
}

func TestIncubator_AdminDashboard(t *testing.T) {
	f := newFixture(t)

	for _, email := range []string{"a@x.test", "b@x.test"} {
		in := validApplication()
		in.Email = email
		res, body := f.do(t, http.MethodPost, "/apply", "", in)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("apply: %d %s", res.StatusCode, body)
		}
	}

	admin := f.login(t, "admin@flarehub.com")
	res, body := f.do(t, http.MethodGet, "/dashboard", admin, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d %s", res.StatusCode, body)
	}
	ov := decode[adminOverview](t, body)
	if ov.View != "admin" || ov.Applications.Total != 2 || ov.Applications.Pending != 2 || ov.Users != 2 || len(ov.Recent) != 2 {
		t.Fatalf("unexpected overview %+v", ov)
	}
}

func TestIncubator_DashboardRequiresLogin(t *testing.T) {
	f := newFixture(t)

	res, _ := f.do(t, http.MethodGet, "/dashboard", "", nil)
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != guard.LoginPath {
		t.Fatalf("expected login redirect, got %d %q", res.StatusCode, res.Header.Get("Location"))
	}
}
