package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/auth"
)

func newTestRouter(jwt *auth.JWTService, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(logger))
	r.GET("/registrations", JWT(jwt), RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubject))
	})
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/registrations", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAcceptsAdminToken(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := auth.NewJWTService("secret", 1)
	token, err := svc.Generate("ops", auth.RoleAdmin)
	require.NoError(t, err)

	w := get(newTestRouter(svc, zap.New(core)), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/registrations", entries[0].ContextMap()["route"])
	assert.Equal(t, "ops", entries[0].ContextMap()["subject"])
}

func TestJWTRejectsMissingAndMalformed(t *testing.T) {
	r := newTestRouter(auth.NewJWTService("secret", 1), zap.NewNop())
	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer abc").Code)
}

func TestRequireRoleRejectsOtherRoles(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	token, err := svc.Generate("viewer", "viewer")
	require.NoError(t, err)

	w := get(newTestRouter(svc, zap.NewNop()), "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
