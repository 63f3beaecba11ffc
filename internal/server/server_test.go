package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"shift_report/internal/catalog"
	"shift_report/internal/report"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	srv   *Server
	store *Store
	http  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := OpenStore(context.Background(), "sqlite", filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := New(store, Options{
		Secret:      testSecret,
		SessionIdle: 5 * time.Minute,
		TokenMaxAge: time.Hour,
		Registry:    prometheus.NewRegistry(),
	}, zaptest.NewLogger(t))

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &testEnv{srv: srv, store: store, http: hs}
}

func (e *testEnv) addUser(t *testing.T, username, password, role string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = e.store.CreateUser(context.Background(), username, string(hash), role)
	require.NoError(t, err)
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var lr loginResponse
	require.NoError(t, json.Unmarshal(body, &lr))
	require.NotEmpty(t, lr.Token)
	return lr.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, in any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func message(t *testing.T, body []byte) string {
	t.Helper()
	var m messageResponse
	require.NoError(t, json.Unmarshal(body, &m), string(body))
	return m.Message
}

func validSubmission() report.Submission {
	return report.Submission{
		Area:       "Chancado",
		Jornada:    "Día",
		Supervisor: "M. Pérez",
		Team: []report.Member{
			{Nombre: "Ana", RUT: "1-9", HoraInicio: "08:00", HoraFin: "17:30", TipoAsist: "EO"},
			{},
		},
		Avances:        []report.Entry{{Descripcion: "built wall"}},
		Interferencias: []report.Entry{},
		Detenciones:    []report.Entry{},
		Comentarios:    []report.Entry{{Descripcion: "sin novedad"}},
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "ana", "secret", "user")

	resp, body := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ana", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid credentials", message(t, body))

	resp, body = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid credentials", message(t, body))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.srv.metrics.loginFailures))

	token := env.login(t, "ana", "secret")
	resp, body = env.do(t, http.MethodGet, "/auth/check", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u User
	require.NoError(t, json.Unmarshal(body, &u))
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, "user", u.Role)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/myreports", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authentication required", message(t, body))

	resp, body = env.do(t, http.MethodGet, "/myreports", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid or expired token", message(t, body))
}

func TestCookieSession(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "ana", "secret", "user")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"ana","password":"secret"}`))
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	check := func() int {
		req := httptest.NewRequest(http.MethodGet, "/auth/check", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, check())

	// Idle past the limit expires the session.
	env.srv.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	assert.Equal(t, http.StatusUnauthorized, check())
}

func TestCreateAndListReports(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "ana", "pw", "user")
	env.addUser(t, "luis", "pw", "user")
	env.addUser(t, "root", "pw", "admin")
	ana := env.login(t, "ana", "pw")
	luis := env.login(t, "luis", "pw")
	root := env.login(t, "root", "pw")

	resp, body := env.do(t, http.MethodPost, "/reports", ana, validSubmission())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created idResponse
	require.NoError(t, json.Unmarshal(body, &created))

	resp, _ = env.do(t, http.MethodPost, "/reports", luis, validSubmission())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.srv.metrics.reportsCreated))

	resp, body = env.do(t, http.MethodGet, "/myreports", ana, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var own []report.Report
	require.NoError(t, json.Unmarshal(body, &own))
	require.Len(t, own, 1)
	got := own[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "ana", got.Username)
	assert.Equal(t, "Chancado", got.Area)
	require.Len(t, got.Team, 1, "empty team rows are not stored")
	assert.Equal(t, "Ana", got.Team[0].Nombre)
	assert.Equal(t, "17:30", got.Team[0].HoraFin)
	assert.Equal(t, []report.Entry{{Descripcion: "built wall"}}, got.Avances)
	assert.Equal(t, []report.Entry{}, got.Interferencias)
	assert.Equal(t, []report.Entry{{Descripcion: "sin novedad"}}, got.Comentarios)
	assert.False(t, got.DateSubmitted.IsZero())

	resp, body = env.do(t, http.MethodGet, "/reports", ana, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "admin access required", message(t, body))

	resp, body = env.do(t, http.MethodGet, "/reports", root, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []report.Report
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 2)
}

func TestCreateReportValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "ana", "pw", "user")
	token := env.login(t, "ana", "pw")

	sub := validSubmission()
	sub.Area = "  "
	resp, body := env.do(t, http.MethodPost, "/reports", token, sub)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing header fields.", message(t, body))

	sub = validSubmission()
	sub.Team = []report.Member{{}}
	resp, body = env.do(t, http.MethodPost, "/reports", token, sub)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing team member.", message(t, body))
}

func TestDeleteReportPermissions(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "ana", "pw", "user")
	env.addUser(t, "luis", "pw", "user")
	env.addUser(t, "root", "pw", "admin")
	ana := env.login(t, "ana", "pw")
	luis := env.login(t, "luis", "pw")
	root := env.login(t, "root", "pw")

	create := func() int64 {
		resp, body := env.do(t, http.MethodPost, "/reports", ana, validSubmission())
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var res idResponse
		require.NoError(t, json.Unmarshal(body, &res))
		return res.ID
	}

	id := create()
	path := "/reports/" + itoa(id)

	resp, _ := env.do(t, http.MethodDelete, path, luis, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, path, luis, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, path, ana, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, path, ana, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, path, ana, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	id = create()
	resp, _ = env.do(t, http.MethodDelete, "/reports/"+itoa(id), root, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.srv.metrics.reportsDeleted))

	var n int
	require.NoError(t, env.store.db.QueryRow("SELECT COUNT(*) FROM report_members").Scan(&n))
	assert.Zero(t, n, "child rows are deleted with the report")
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "root", "pw", "admin")
	env.addUser(t, "ana", "pw", "user")
	root := env.login(t, "root", "pw")
	ana := env.login(t, "ana", "pw")

	req := map[string]string{"username": "luis", "password": "pw2", "role": "user"}
	resp, _ := env.do(t, http.MethodPost, "/auth/register", ana, req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/auth/register", root, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	env.login(t, "luis", "pw2")

	resp, _ = env.do(t, http.MethodPost, "/auth/register", root, req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/auth/register", root, map[string]string{"username": "x", "password": "y", "role": "owner"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, message(t, body), "unknown role")
}

func TestCatalogCRUD(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "root", "pw", "admin")
	env.addUser(t, "ana", "pw", "user")
	root := env.login(t, "root", "pw")
	ana := env.login(t, "ana", "pw")

	resp, _ := env.do(t, http.MethodPost, "/catalog/workers", ana, catalog.Worker{Nombre: "X"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/catalog/workers", root, catalog.Worker{RUT: "1-9", Nombre: "Ana Rojas", Cargo: "Capataz"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var w idResponse
	require.NoError(t, json.Unmarshal(body, &w))

	resp, _ = env.do(t, http.MethodPut, "/catalog/workers/"+itoa(w.ID), root, catalog.Worker{RUT: "1-9", Nombre: "Ana Rojas", Cargo: "Supervisor"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/catalog/workers", ana, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var workers []catalog.Worker
	require.NoError(t, json.Unmarshal(body, &workers))
	require.Len(t, workers, 1)
	assert.Equal(t, catalog.FromInt(w.ID), workers[0].ID)
	assert.Equal(t, "Supervisor", workers[0].Cargo)

	for _, kind := range []string{"tramos", "activities"} {
		resp, body = env.do(t, http.MethodPost, "/catalog/"+kind, root, map[string]string{"nombre": "  Uno "})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var e idResponse
		require.NoError(t, json.Unmarshal(body, &e))

		resp, body = env.do(t, http.MethodGet, "/catalog/"+kind, ana, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var entries []namedEntry
		require.NoError(t, json.Unmarshal(body, &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "Uno", entries[0].Nombre)

		resp, _ = env.do(t, http.MethodDelete, "/catalog/"+kind+"/"+itoa(e.ID), root, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = env.do(t, http.MethodDelete, "/catalog/"+kind+"/"+itoa(e.ID), root, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/catalog/tramos", root, map[string]string{"nombre": " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "nombre is required", message(t, body))

	resp, _ = env.do(t, http.MethodGet, "/catalog/cargos", ana, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnsureAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.srv.EnsureAdmin(ctx, "root", "pw"))
	env.login(t, "root", "pw")

	// A second call with users present is a no-op.
	require.NoError(t, env.srv.EnsureAdmin(ctx, "other", "pw"))
	n, err := env.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/myreports", "", nil)

	resp, body := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `shiftreport_http_requests_total{method="GET",route="/myreports",status="401"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/myreports", "", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestPostgresPlaceholders(t *testing.T) {
	s := &Store{driver: "postgres"}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.q("SELECT a FROM t WHERE x = ? AND y = ?"))

	s.driver = "sqlite"
	assert.Equal(t, "WHERE x = ?", s.q("WHERE x = ?"))
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestUserAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "root", "pw", "admin")
	env.addUser(t, "ana", "pw", "user")
	env.addUser(t, "luis", "pw", "user")
	root := env.login(t, "root", "pw")
	ana := env.login(t, "ana", "pw")

	resp, _ := env.do(t, http.MethodGet, "/users", ana, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/users", root, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []User
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 3)
	assert.Equal(t, "ana", users[0].Username)
	byName := map[string]User{}
	for _, u := range users {
		byName[u.Username] = u
	}

	luis := byName["luis"]
	resp, _ = env.do(t, http.MethodPut, "/users/"+itoa(luis.ID), root, map[string]string{"username": "luis", "role": "admin", "password": "new"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := env.login(t, "luis", "new")
	resp, _ = env.do(t, http.MethodGet, "/reports", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPut, "/users/"+itoa(luis.ID), root, map[string]string{"username": "ana", "role": "user"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/users/"+itoa(byName["root"].ID), root, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/reports", ana, validSubmission())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body = env.do(t, http.MethodDelete, "/users/"+itoa(byName["ana"].ID), root, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "user has reports", message(t, body))

	resp, _ = env.do(t, http.MethodDelete, "/users/"+itoa(luis.ID), root, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/users/"+itoa(luis.ID), root, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletedUserTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "root", "pw", "admin")
	env.addUser(t, "luis", "pw", "user")
	root := env.login(t, "root", "pw")
	luis := env.login(t, "luis", "pw")

	u, _, err := env.store.UserByUsername(context.Background(), "luis")
	require.NoError(t, err)
	resp, _ := env.do(t, http.MethodDelete, "/users/"+itoa(u.ID), root, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/reports", luis, validSubmission())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "account no longer exists", message(t, body))

	var n int
	require.NoError(t, env.store.db.QueryRow("SELECT COUNT(*) FROM reports").Scan(&n))
	assert.Zero(t, n)
}

func TestRoleChangeAppliesToIssuedToken(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "root", "pw", "admin")
	env.addUser(t, "boss", "pw", "admin")
	root := env.login(t, "root", "pw")
	boss := env.login(t, "boss", "pw")

	resp, _ := env.do(t, http.MethodGet, "/users", boss, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	u, _, err := env.store.UserByUsername(context.Background(), "boss")
	require.NoError(t, err)
	resp, _ = env.do(t, http.MethodPut, "/users/"+itoa(u.ID), root, map[string]string{"username": "boss", "role": "user"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/users", boss, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/auth/check", boss, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got User
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "user", got.Role)
}

func TestCookieSessionFollowsStoredRole(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "boss", "pw", "admin")

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"boss","password":"pw"}`))
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	listUsers := func() int {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, listUsers())

	u, _, err := env.store.UserByUsername(context.Background(), "boss")
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateUser(context.Background(), User{ID: u.ID, Username: "boss", Role: "user"}, ""))
	assert.Equal(t, http.StatusForbidden, listUsers())

	require.NoError(t, env.store.DeleteUser(context.Background(), u.ID))
	assert.Equal(t, http.StatusUnauthorized, listUsers())
}

func TestUnmatchedRequestsLoggedAndCounted(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", message(t, body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = env.do(t, http.MethodPatch, "/reports", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "method not allowed", message(t, body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `shiftreport_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, string(body), `shiftreport_http_requests_total{method="PATCH",route="unmatched",status="405"} 1`)
}
