// shared/pkg/middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

var errMissingSubject = errors.New("token carries no user id")

// Auth verifies an HS256 bearer token and stores the caller's user id on the context.
// The id is read from "sub", falling back to the numeric or string "userId" claim.
func Auth(secret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized"})
			return
		}

		userID, err := ParseUserID(tokenString, secret)
		if err != nil {
			log.Debug("rejected bearer token",
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err))
			msg := "Not authorized"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// ParseUserID validates the token signature and expiry and extracts the user id.
func ParseUserID(tokenString, secret string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return "", err
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}

	switch v := claims["userId"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	}
	return "", errMissingSubject
}

// GetUserID returns the id stored by Auth.
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	return userID, userID != ""
}
