package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Miguel-Alzate/modr/internal/validation"
)

const ContextUserIDKey = "modr_user_id"

// Claims is the subset of a bearer token MODR reads.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// SetUserID attributes the current request to a user. Hosts with their own
// authentication call it instead of relying on Identity.
func SetUserID(c *gin.Context, id string) {
	c.Set(ContextUserIDKey, id)
}

// Identity reads an HS256 bearer token and, when it names a v4 UUID user,
// attributes the request to that user. It never rejects a request: a missing
// or bad token just leaves the capture attributed to the system user.
func Identity(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}
		if id, ok := userFromToken(c.GetHeader("Authorization"), key); ok {
			SetUserID(c, id)
		}
		c.Next()
	}
}

func userFromToken(header string, key []byte) (string, bool) {
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		return "", false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	for _, candidate := range []string{claims.Subject, claims.UserID} {
		if id, err := validation.ParseUUID(candidate); err == nil {
			return id.String(), true
		}
	}
	return "", false
}
