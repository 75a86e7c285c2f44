package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/subtrack_server/internal/pkg/jwt"
	"github.com/qs3c/subtrack_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authRouter() *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestAuth_Success(t *testing.T) {
	token, err := jwt.GenerateToken(123, testJWTSecret, 24)
	require.NoError(t, err)

	for _, scheme := range []string{"Bearer ", "bearer "} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", scheme+token)
		w := httptest.NewRecorder()
		authRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user_id":123}`, w.Body.String())
	}
}

func TestAuth_Rejected(t *testing.T) {
	wrongSecret, err := jwt.GenerateToken(123, "another-secret", 24)
	require.NoError(t, err)

	tests := []struct {
		name        string
		header      string
		wantMessage string
	}{
		{"missing header", "", "请提供认证信息"},
		{"no bearer prefix", "some-token-without-bearer", "认证格式错误"},
		{"empty bearer", "Bearer ", "认证格式错误"},
		{"garbage token", "Bearer invalid.token.here", "认证失败"},
		{"wrong secret", "Bearer " + wrongSecret, "认证失败"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			authRouter().ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, response.CodeAuthFailed, resp.Code)
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	claims := jwt.Claims{
		UserID: 123,
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	authRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "登录已过期", parseResponse(t, w).Message)
}

func TestTriggerToken(t *testing.T) {
	newRouter := func(token string) *gin.Engine {
		router := gin.New()
		router.Use(TriggerToken(token))
		router.POST("/trigger", func(c *gin.Context) {
			c.Status(http.StatusAccepted)
		})
		return router
	}

	t.Run("disabled when empty", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter("").ServeHTTP(w, httptest.NewRequest("POST", "/trigger", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("matching token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/trigger", nil)
		req.Header.Set(TriggerTokenHeader, "s3cret")
		w := httptest.NewRecorder()
		newRouter("s3cret").ServeHTTP(w, req)
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/trigger", nil)
		req.Header.Set(TriggerTokenHeader, "guess")
		w := httptest.NewRecorder()
		newRouter("s3cret").ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetUserID(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		set    bool
		wantID int64
		wantOK bool
	}{
		{"not set", nil, false, 0, false},
		{"wrong type", "123", true, 0, false},
		{"int64", int64(456), true, 456, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.set {
				c.Set(UserIDKey, tt.value)
			}

			id, ok := GetUserID(c)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
