package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reelpipe/infrastructure/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ping", Auth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject")})
	})
	return r
}

func call(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ValidToken(t *testing.T) {
	token, err := utils.GenerateToken("operator", time.Hour, "s3cret")
	require.NoError(t, err)

	w := call(protected("s3cret"), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subject":"operator"}`, w.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	r := protected("s3cret")
	wrongKey, err := utils.GenerateToken("operator", time.Hour, "other")
	require.NoError(t, err)
	expired, err := utils.GenerateToken("operator", -time.Minute, "s3cret")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Token abc").Code)

	w := call(r, "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "not even a token")

	w = call(r, "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Timing is everything")

	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer "+wrongKey).Code)
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	assert.Equal(t, http.StatusOK, call(protected(""), "").Code)
}
