package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecret(t *testing.T, secret string) {
	t.Helper()
	SetJWTSecret(secret)
	t.Cleanup(func() { SetJWTSecret("") })
}

func TestGenerateToken(t *testing.T) {
	_, err := GenerateToken("ui", time.Hour)
	assert.Error(t, err, "no secret configured")

	withSecret(t, "test-secret")
	token, err := GenerateToken("ui", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ui", claims.ClientID)
	assert.Equal(t, "vedit", claims.Issuer)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	withSecret(t, "test-secret")
	expired, err := GenerateToken("ui", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	SetJWTSecret("other-secret")
	foreign, err := GenerateToken("ui", time.Hour)
	require.NoError(t, err)
	SetJWTSecret("test-secret")
	_, err = ParseToken(foreign)
	assert.Error(t, err)
}

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	withSecret(t, "test-secret")

	tests := []struct {
		name           string
		token          string
		expectedStatus int
	}{
		{
			name:           "Missing authorization header",
			token:          "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid token format",
			token:          "InvalidToken",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Garbage bearer token",
			token:          "Bearer not.a.jwt",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", tt.token)
			}
			c.Request = req

			JWTAuth()(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, c.IsAborted())
		})
	}
}

func TestJWTAuthWithValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	withSecret(t, "test-secret")

	token, err := GenerateToken("editor-ui", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	router.Use(JWTAuth())
	router.GET("/test", func(c *gin.Context) {
		clientID, exists := GetClientID(c)
		assert.True(t, exists)
		assert.Equal(t, "editor-ui", clientID)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// EventSource clients pass the token as a query parameter.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetJWTSecret("")

	router := gin.New()
	router.Use(JWTAuth())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
