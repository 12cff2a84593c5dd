package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/users"
	"evently-waitlist/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(auth *Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", auth.JWTAuth(), func(c *gin.Context) {
		id, _ := c.Get("user_id")
		c.String(http.StatusOK, id.(string))
	})
	r.GET("/admin", auth.JWTAuth(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthAcceptsIssuedToken(t *testing.T) {
	auth := NewAuth(config.JWTConfig{Secret: "test-secret"}, logger.Discard())
	r := newTestRouter(auth)
	userID := uuid.New()

	token, err := auth.IssueAccessToken(userID, "ada@example.com", users.RoleUser, time.Hour)
	require.NoError(t, err)

	w := get(r, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())

	w = get(r, "/admin", token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken, err := auth.IssueAccessToken(uuid.New(), "ops@example.com", users.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", adminToken).Code)
}

func TestJWTAuthRejections(t *testing.T) {
	auth := NewAuth(config.JWTConfig{Secret: "test-secret"}, logger.Discard())
	r := newTestRouter(auth)

	expired := NewAuth(config.JWTConfig{Secret: "test-secret"}, logger.Discard())
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.IssueAccessToken(uuid.New(), "a@example.com", users.RoleUser, time.Hour)
	require.NoError(t, err)

	forged, err := NewAuth(config.JWTConfig{Secret: "other"}, nil).IssueAccessToken(uuid.New(), "a@example.com", users.RoleUser, time.Hour)
	require.NoError(t, err)

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uuid.NewString(),
		"type":    "refresh",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"expired", expiredToken},
		{"wrong secret", forged},
		{"refresh token", refresh},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(r, "/me", tc.token).Code)
		})
	}
}

func TestRequestLoggerEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger.Discard()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, get(r, "/ping", "").Header().Get("X-Request-ID"))
}
