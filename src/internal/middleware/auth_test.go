package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims *Claims, secret string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func runRequest(authHeader string) (*httptest.ResponseRecorder, map[string]interface{}) {
	gin.SetMode(gin.TestMode)

	captured := make(map[string]interface{})

	router := gin.New()
	router.Use(NewAuthMiddleware(testSecret).RequireAuth())
	router.GET("/probe", func(c *gin.Context) {
		captured["user_id"], _ = c.Get("user_id")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder, captured
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	token := signToken(t, &Claims{
		UserID: 42,
		Role:   "player",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	recorder, captured := runRequest("Bearer " + token)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 42, captured["user_id"])
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	recorder, _ := runRequest("")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequireAuthRejectsWrongSecret(t *testing.T) {
	token := signToken(t, &Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, "other-secret")

	recorder, _ := runRequest("Bearer " + token)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	token := signToken(t, &Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, testSecret)

	recorder, _ := runRequest("Bearer " + token)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequireAuthRejectsTokenWithoutUserID(t *testing.T) {
	token := signToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	recorder, _ := runRequest("Bearer " + token)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
