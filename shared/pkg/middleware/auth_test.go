// shared/pkg/middleware/auth_test.go
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
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		secret  string
		want    string
		wantErr bool
	}{
		{
			name:   "subject claim",
			claims: jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()},
			secret: testSecret,
			want:   "user-1",
		},
		{
			name:   "numeric userId claim",
			claims: jwt.MapClaims{"userId": 42, "exp": time.Now().Add(time.Hour).Unix()},
			secret: testSecret,
			want:   "42",
		},
		{
			name:    "wrong secret",
			claims:  jwt.MapClaims{"sub": "user-1"},
			secret:  "other-secret",
			wantErr: true,
		},
		{
			name:    "expired",
			claims:  jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()},
			secret:  testSecret,
			wantErr: true,
		},
		{
			name:    "no user id",
			claims:  jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()},
			secret:  testSecret,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUserID(signToken(t, tt.claims, tt.secret), testSecret)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Auth(testSecret, zap.NewNop()))
	router.GET("/me", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.String(http.StatusOK, userID)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "user-7"}, testSecret))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-7", w.Body.String())
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})
}
