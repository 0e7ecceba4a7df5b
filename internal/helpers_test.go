package internal

import (
	"testing"

	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos/sqlitetest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

var testPolicy = access.DefaultPolicy()

func testLogger() *logrus.Entry {
	return sqlitetest.Logger()
}

// testCtx returns a context like the transport builds it, with the session if given
func testCtx(sess *models.Session) context.Context {
	ctx := ctxhelper.WithLogger(context.Background(), testLogger())
	if sess != nil {
		ctx = ctxhelper.WithSession(ctx, *sess)
	}
	return ctx
}

func adminSession() *models.Session {
	perms := []string{}
	for _, p := range models.DefaultPermissions() {
		perms = append(perms, p.Name)
	}
	return &models.Session{
		ID: "admin-session",
		Identity: models.Identity{
			UserID:      1,
			Name:        "admin",
			Role:        models.RoleAdmin,
			Permissions: models.NewPermissionSet(perms...),
		},
	}
}

func userSession(perms ...string) *models.Session {
	return &models.Session{
		ID: "user-session",
		Identity: models.Identity{
			UserID:      2,
			Name:        "ana",
			Role:        models.RoleUser,
			Permissions: models.NewPermissionSet(perms...),
		},
	}
}

// requireHTTPError checks that err is an HTTPError with the given status and code
func requireHTTPError(t *testing.T, err error, status int, code string) *HTTPError {
	t.Helper()
	require.Error(t, err)
	httpErr, ok := err.(*HTTPError)
	require.True(t, ok, "expected *HTTPError, got %T: %v", err, err)
	assert.Equal(t, status, httpErr.Status())
	assert.Equal(t, code, httpErr.ErrorCode())
	return httpErr
}
