package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/derWhity/medstock/internal/models"
	recordrepo "github.com/derWhity/medstock/internal/repos/record/sqlite"
	sessionrepo "github.com/derWhity/medstock/internal/repos/session/inmem"
	"github.com/derWhity/medstock/internal/repos/sqlitetest"
	"github.com/derWhity/medstock/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

const testShell = "<html><body>MedStock</body></html>"

// newTestHandler builds the full HTTP handler on local stores. The UI directory holds the page shell and a script
func newTestHandler(t *testing.T) http.Handler {
	uiDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(uiDir, uiIndexFile), []byte(testShell), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(uiDir, "app.js"), []byte("console.log(1)"), 0600))

	users, roles := identityStore(t)
	records := recordrepo.New(sqlitetest.NewDB(t), testLogger())
	countUsers := func(ctx context.Context) (uint, error) { return users.Count() }
	svc := Services{
		Session:    NewSessionService(sessionrepo.New(time.Hour), NewLocalAuthenticator(users, roles), testLogger()),
		Navigation: NewNavigationService(routing.NewDefaultTable(), testLogger()),
		Record:     NewRecordService(records, testPolicy, testLogger()),
		Dashboard:  NewDashboardService(records, countUsers, testPolicy, testLogger()),
		Profile:    NewProfileService(NewLocalAccountStore(users, roles), testLogger()),
		Directory:  NewDirectoryService(users, roles, testPolicy, true, testLogger()),
	}
	return MakeHTTPHandler(svc, testPolicy, uiDir, testLogger())
}

func doRequest(h http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// login logs in and returns the session cookie
func login(t *testing.T, h http.Handler, user string) *http.Cookie {
	t.Helper()
	rec := doRequest(h, http.MethodPost, "/api/login", `{"user": "`+user+`", "password": "secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			assert.True(t, c.HttpOnly)
			assert.NotEmpty(t, c.Value)
			return c
		}
	}
	require.FailNow(t, "no session cookie set")
	return nil
}

type apiResponse struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"errorDetails"`
}

func decodeAPI(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var res apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func TestPageRedirects(t *testing.T) {
	h := newTestHandler(t)
	ana := login(t, h, "ana")
	admin := login(t, h, "admin")

	for _, tc := range []struct {
		path     string
		cookie   *http.Cookie
		location string
	}{
		{routing.PathLegacyUserForm, nil, routing.PathLogin},
		{routing.PathMaintenance, nil, routing.PathLogin},
		{"/no/such/page", nil, routing.PathLogin},
		{routing.PathMaintenance, ana, routing.PathNotFound},
		{routing.PathAdminDashboard, ana, routing.PathNotFound},
		{"/no/such/page", ana, routing.PathNotFound},
		{routing.PathAdminFormBuilder, admin, routing.PathNotAvailable},
		{routing.PathLogin, ana, routing.PathDashboard},
		{routing.PathLogin, admin, routing.PathAdminDashboard},
	} {
		var cookies []*http.Cookie
		if tc.cookie != nil {
			cookies = append(cookies, tc.cookie)
		}
		rec := doRequest(h, http.MethodGet, tc.path, "", cookies...)
		assert.Equal(t, http.StatusFound, rec.Code, tc.path)
		assert.Equal(t, tc.location, rec.Header().Get("Location"), tc.path)
	}
}

func TestPageShell(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, routing.PathLogin, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testShell, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	admin := login(t, h, "admin")
	rec = doRequest(h, http.MethodGet, "/dashboard/mantenimiento/detalles/12", "", admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testShell, rec.Body.String())

	// Files of the UI are served without a session
	rec = doRequest(h, http.MethodGet, "/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/alive", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestLoginLogoutFlow(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/login", `{"user": "ana", "password": "nope"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, ErrCodeLoginFailed, decodeAPI(t, rec).Error)

	rec = doRequest(h, http.MethodPost, "/api/login", `{"user": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeIllegalJSON, decodeAPI(t, rec).Error)

	ana := login(t, h, "ana")
	rec = doRequest(h, http.MethodGet, "/api/whoami", "", ana)
	res := decodeAPI(t, rec)
	assert.True(t, res.OK)
	var si SessionInfo
	require.NoError(t, json.Unmarshal(res.Data, &si))
	assert.Equal(t, "ana", si.UserName)
	assert.Equal(t, models.RoleUser, si.Role)

	// API clients send the token as header
	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set(SessionHeader, ana.Value)
	hdr := httptest.NewRecorder()
	h.ServeHTTP(hdr, req)
	assert.Contains(t, hdr.Body.String(), `"userName":"ana"`)

	for i := 0; i < 2; i++ {
		rec = doRequest(h, http.MethodPost, "/api/logout", "", ana)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decodeAPI(t, rec).OK)
		require.NotEmpty(t, rec.Result().Cookies())
		assert.Equal(t, SessionCookie, rec.Result().Cookies()[0].Name)
		assert.True(t, rec.Result().Cookies()[0].MaxAge < 0)
	}

	rec = doRequest(h, http.MethodGet, "/api/whoami", "", ana)
	res = decodeAPI(t, rec)
	assert.True(t, res.OK)
	assert.Empty(t, res.Data)

	rec = doRequest(h, http.MethodGet, routing.PathDashboard, "", ana)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, routing.PathLogin, rec.Header().Get("Location"))
}

func TestLoginReplacesSession(t *testing.T) {
	h := newTestHandler(t)
	first := login(t, h, "ana")

	rec := doRequest(h, http.MethodPost, "/api/login", `{"user": "admin", "password": "secret123"}`, first)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			second = c
		}
	}
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)

	res := decodeAPI(t, doRequest(h, http.MethodGet, "/api/whoami", "", first))
	assert.True(t, res.OK)
	assert.Empty(t, res.Data)

	res = decodeAPI(t, doRequest(h, http.MethodGet, "/api/whoami", "", second))
	var si SessionInfo
	require.NoError(t, json.Unmarshal(res.Data, &si))
	assert.Equal(t, "admin", si.UserName)
}

func TestAPIAccessDenied(t *testing.T) {
	h := newTestHandler(t)
	ana := login(t, h, "ana")

	for _, tc := range []struct {
		method, path string
		cookie       *http.Cookie
		code         string
	}{
		{http.MethodGet, "/api/records/medicamentos", nil, ErrCodeNotLoggedIn},
		{http.MethodGet, "/api/profile", nil, ErrCodeNotLoggedIn},
		{http.MethodGet, "/api/dashboard/admin", nil, ErrCodeNotLoggedIn},
		{http.MethodGet, "/api/records/mantenimientos", ana, ErrCodeNotPermitted},
		{http.MethodGet, "/api/dashboard/admin", ana, ErrCodeNotPermitted},
		{http.MethodGet, "/api/users", ana, ErrCodeNotPermitted},
		{http.MethodGet, "/api/routes", ana, ErrCodeNotPermitted},
	} {
		var cookies []*http.Cookie
		if tc.cookie != nil {
			cookies = append(cookies, tc.cookie)
		}
		rec := doRequest(h, tc.method, tc.path, "", cookies...)
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.path)
		res := decodeAPI(t, rec)
		assert.False(t, res.OK)
		assert.Equal(t, tc.code, res.Error, tc.path)
	}

	rec := doRequest(h, http.MethodGet, "/api/nothing/here", "", ana)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeUnknownFunction, decodeAPI(t, rec).Error)
}

func TestRecordAPI(t *testing.T) {
	h := newTestHandler(t)
	ana := login(t, h, "ana")

	body := `{"principio_activo": "Ibuprofeno", "forma_farmaceutica": "Tableta", "lote": "L-7",
		"fecha_vencimiento": "2027-01-31", "registro_sanitario": "INVIMA 2020M-1"}`
	rec := doRequest(h, http.MethodPost, "/api/records/medicamentos", body, ana)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(decodeAPI(t, rec).Data, &created))
	assert.Equal(t, "Ibuprofeno", created["principio_activo"])
	id, ok := created["id"].(float64)
	require.True(t, ok)

	rec = doRequest(h, http.MethodGet, "/api/records/medicamentos?search=ibupro", "", ana)
	require.Equal(t, http.StatusOK, rec.Code)
	var page pagingResponse
	require.NoError(t, json.Unmarshal(decodeAPI(t, rec).Data, &page))
	assert.Equal(t, uint(1), page.Rows)

	rec = doRequest(h, http.MethodPost, "/api/records/medicamentos", `{"lote": "L-8"}`, ana)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decodeAPI(t, rec)
	assert.Equal(t, ErrCodeValidation, res.Error)
	assert.Contains(t, string(res.Details), "principio_activo")

	rec = doRequest(h, http.MethodGet, "/api/records/medicamentos/export", "", ana)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "medicamentos_")
	assert.Contains(t, rec.Body.String(), "Ibuprofeno")

	rec = doRequest(h, http.MethodDelete, "/api/records/medicamentos/"+strconv.Itoa(int(id)), "", ana)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(h, http.MethodGet, "/api/records/medicamentos/"+strconv.Itoa(int(id)), "", ana)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeRecordNotFound, decodeAPI(t, rec).Error)

	rec = doRequest(h, http.MethodGet, "/api/records/pacientes/schema", "", ana)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeUnknownKind, decodeAPI(t, rec).Error)
}

func TestMenuAPI(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/menu", "", login(t, h, "ana"))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []routing.MenuItem
	require.NoError(t, json.Unmarshal(decodeAPI(t, rec).Data, &items))
	require.NotEmpty(t, items)
	for _, item := range items {
		assert.NotEqual(t, routing.PathMaintenance, item.Path)
		assert.False(t, strings.HasPrefix(item.Path, routing.PathAdminDashboard), item.Path)
	}

	rec = doRequest(h, http.MethodGet, "/api/navigation?path="+routing.PathMaintenance, "", login(t, h, "admin"))
	require.Equal(t, http.StatusOK, rec.Code)
	var res routing.Resolution
	require.NoError(t, json.Unmarshal(decodeAPI(t, rec).Data, &res))
	assert.Equal(t, "maintenance", res.Route)
	assert.False(t, res.IsRedirect())
}
