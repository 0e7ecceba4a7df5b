package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, r *mux.Router) *Client {
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := New(models.BackendConfig{URL: srv.URL + "/api"}, testLogger())
	require.NoError(t, err)
	return c
}

func sessionCtx(token string) context.Context {
	return ctxhelper.WithSession(context.Background(), models.Session{ID: "s", BackendToken: token})
}

func TestNewRejectsIllegalURLs(t *testing.T) {
	_, err := New(models.BackendConfig{URL: "ftp://example.org"}, testLogger())
	assert.Error(t, err)
	_, err = New(models.BackendConfig{URL: "://"}, testLogger())
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Methods(http.MethodPost).Path("/api/auth/login").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body loginRequest
		json.NewDecoder(req.Body).Decode(&body)
		if body.User != "ana" || body.Password != "secret123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"mensaje": "Credenciales inválidas"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token": token,
			"usuario": map[string]interface{}{
				"id": 7, "usuario": "ana", "nombre_completo": "Ana Pérez", "rol": "usuario",
				"permisos": []string{"ver_mantenimiento", "ver_inventario", "ver_mantenimiento"},
			},
		})
	})
	c := newTestClient(t, r)

	auth, err := c.Authenticate(context.Background(), "ana", "secret123")
	require.NoError(t, err)
	require.NotNil(t, auth)
	assert.Equal(t, token, auth.Token)
	assert.Equal(t, uint(7), auth.Identity.UserID)
	assert.Equal(t, "Ana Pérez", auth.Identity.DisplayName)
	assert.Equal(t, models.RoleUser, auth.Identity.Role)
	assert.Equal(t, models.PermissionSet{"ver_inventario", "ver_mantenimiento"}, auth.Identity.Permissions)
	assert.True(t, exp.Equal(auth.ExpiresAt))

	auth, err = c.Authenticate(context.Background(), "ana", "wrong")
	assert.NoError(t, err)
	assert.Nil(t, auth)
}

func TestAuthenticateServerError(t *testing.T) {
	r := mux.NewRouter()
	r.Path("/api/auth/login").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, r)
	_, err := c.Authenticate(context.Background(), "ana", "secret123")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Equal(t, "The inventory API answered with status 500", err.Error())
}

func TestTokenExpiryWithoutClaim(t *testing.T) {
	assert.True(t, tokenExpiry("not-a-jwt").IsZero())
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.True(t, tokenExpiry(token).IsZero())
}

func TestRecordRequests(t *testing.T) {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
			next.ServeHTTP(w, req)
		})
	})
	r.Methods(http.MethodGet).Path("/api/medicamentos").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "ibu", req.URL.Query().Get("buscar"))
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": 3, "principio_activo": "Ibuprofeno", "creado_por": map[string]string{"nombre": "x"}},
			{"id": 2, "principio_activo": "Ibuprofeno forte"},
			{"id": 1, "principio_activo": "Ibuprofeno retard"},
		})
	})
	r.Methods(http.MethodGet).Path("/api/medicamentos/total").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"total": 42})
	})
	r.Methods(http.MethodGet).Path("/api/medicamentos/grafica").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "2026-01-01", req.URL.Query().Get("desde"))
		writeJSON(w, http.StatusOK, []map[string]interface{}{{"fecha": "2026-01-02", "total": 4}})
	})
	r.Methods(http.MethodGet).Path("/api/medicamentos/{id}").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if mux.Vars(req)["id"] != "3" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "No existe"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": 3, "lote": "A1", "creado_por": 5})
	})
	r.Methods(http.MethodPost).Path("/api/medicamentos").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var fields map[string]string
		json.NewDecoder(req.Body).Decode(&fields)
		assert.Equal(t, "A1", fields["lote"])
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": 9, "lote": "A1"})
	})
	r.Methods(http.MethodPut, http.MethodDelete).Path("/api/medicamentos/{id}").
		HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if mux.Vars(req)["id"] != "9" {
				writeJSON(w, http.StatusNotFound, map[string]string{"mensaje": "No existe"})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	c := newTestClient(t, r)
	ctx := sessionCtx("tok")

	recs, total, err := c.Find(ctx, models.KindMedications, "ibu", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(3), total)
	require.Len(t, recs, 1)
	assert.Equal(t, uint(2), recs[0].ID)
	assert.Equal(t, models.KindMedications, recs[0].Kind)

	recs, total, err = c.Find(ctx, models.KindMedications, "ibu", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(3), total)
	assert.Empty(t, recs)

	num, err := c.Count(ctx, models.KindMedications)
	require.NoError(t, err)
	assert.Equal(t, uint(42), num)

	days, err := c.CountByDay(ctx, models.KindMedications, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []models.DayCount{{Day: "2026-01-02", Count: 4}}, days)

	rec, err := c.GetByID(ctx, models.KindMedications, 3)
	require.NoError(t, err)
	assert.Equal(t, "A1", rec.Fields["lote"])
	assert.Equal(t, uint(5), rec.CreatedBy)
	_, err = c.GetByID(ctx, models.KindMedications, 4)
	assert.Equal(t, repos.ErrEntityNotExisting, err)

	rec = &models.Record{Kind: models.KindMedications, Fields: map[string]string{"lote": "A1"}}
	require.NoError(t, c.Create(ctx, rec))
	assert.Equal(t, uint(9), rec.ID)
	assert.NoError(t, c.Update(ctx, rec))
	assert.NoError(t, c.Delete(ctx, models.KindMedications, 9))
	assert.Equal(t, repos.ErrEntityNotExisting, c.Delete(ctx, models.KindMedications, 10))
}

func TestErrorMessagesAreSurfaced(t *testing.T) {
	r := mux.NewRouter()
	r.Path("/api/reactivos_vigilancia").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"mensaje": "Registro sanitario duplicado"})
	})
	c := newTestClient(t, r)
	err := c.Create(sessionCtx("tok"), &models.Record{Kind: models.KindReagents})
	require.Error(t, err)
	assert.Equal(t, "Registro sanitario duplicado", err.Error())
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
	assert.False(t, IsStatus(err, http.StatusNotFound))
}

func TestExport(t *testing.T) {
	r := mux.NewRouter()
	r.Path("/api/inventarios/exportar").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="inventario.xlsx"`)
		w.Write([]byte("PK-data"))
	})
	r.Path("/api/mantenimientos/exportar").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("plain"))
	})
	c := newTestClient(t, r)

	export, err := c.Export(sessionCtx("tok"), models.KindInventory)
	require.NoError(t, err)
	assert.Equal(t, "inventario.xlsx", export.Filename)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.ContentType)
	assert.Equal(t, []byte("PK-data"), export.Data)

	export, err = c.Export(sessionCtx("tok"), models.KindMaintenance)
	require.NoError(t, err)
	assert.Equal(t, "mantenimientos.xlsx", export.Filename)
	assert.Contains(t, export.ContentType, "text/plain")
}

func TestExportSizeLimit(t *testing.T) {
	r := mux.NewRouter()
	r.Path("/api/inventarios/exportar").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("0123456789"))
	})
	c := newTestClient(t, r)

	c.maxExportSize = 10
	export, err := c.Export(sessionCtx("tok"), models.KindInventory)
	require.NoError(t, err)
	assert.Len(t, export.Data, 10)

	c.maxExportSize = 9
	export, err = c.Export(sessionCtx("tok"), models.KindInventory)
	assert.Nil(t, export)
	assert.True(t, IsStatus(err, http.StatusBadGateway), "%v", err)
}

func TestProfile(t *testing.T) {
	r := mux.NewRouter()
	r.Methods(http.MethodGet).Path("/api/perfil").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": 7, "usuario": "ana", "nombre_completo": "Ana Pérez", "email": "ana@example.org", "rol": "usuario",
		})
	})
	r.Methods(http.MethodPut).Path("/api/perfil").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body profileUpdate
		json.NewDecoder(req.Body).Decode(&body)
		assert.Equal(t, "555", body.Phone)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Methods(http.MethodPut).Path("/api/perfil/contrasena").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body passwordChange
		json.NewDecoder(req.Body).Decode(&body)
		if body.Current != "old-secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"mensaje": "Contraseña actual incorrecta"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, r)
	ctx := sessionCtx("tok")

	p, err := c.GetProfile(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", p.FullName)
	assert.Equal(t, "ana@example.org", p.Email)

	p.Phone = "555"
	assert.NoError(t, c.UpdateProfile(ctx, p))

	assert.NoError(t, c.ChangePassword(ctx, 7, "old-secret", "new-secret"))
	assert.Equal(t, repos.ErrWrongPassword, c.ChangePassword(ctx, 7, "nope", "new-secret"))
}

func TestTimeout(t *testing.T) {
	r := mux.NewRouter()
	r.Path("/api/medicamentos/total").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]int{"total": 1})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c, err := New(models.BackendConfig{URL: srv.URL + "/api", Timeout: "20ms"}, testLogger())
	require.NoError(t, err)
	_, err = c.Count(context.Background(), models.KindMedications)
	assert.Error(t, err)
}
