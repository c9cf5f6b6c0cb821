package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const authUserContextKey = "auth_user_id"

// authMiddleware validates a bearer token and stores the subject claim as
// the authenticated user id. Only HS256 tokens from the configured issuer
// are accepted.
func authMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		subject, err := parseSubject(token, signingKey, issuer)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		ctx.Set(authUserContextKey, subject)
		ctx.Next()
	}
}

func parseSubject(token string, signingKey []byte, issuer string) (string, error) {
	parsed, err := jwt.Parse(token, func(parsedToken *jwt.Token) (interface{}, error) {
		if _, ok := parsedToken.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", parsedToken.Method.Alg())
		}
		return signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

func authenticatedUser(ctx *gin.Context) string {
	value, ok := ctx.Get(authUserContextKey)
	if !ok {
		return ""
	}
	subject, _ := value.(string)
	return subject
}
