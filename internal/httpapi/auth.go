package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// publicPaths never require a bearer token — a caller needs to be able
// to reach these before it has one.
var publicPaths = map[string]struct{}{
	"/healthz": {},
}

// jwtAuth returns a gin middleware that rejects any request outside
// publicPaths unless its bearer token either matches one of
// hashedAPITokens (bcrypt-hashed static tokens, config.AuthConfig.Tokens)
// or is a valid HS256-signed JWT for secret. Both secret and
// hashedAPITokens empty disables auth entirely (local/dev convenience;
// SPEC_FULL.md's inspector surface is explicitly "optional tooling").
func jwtAuth(secret string, hashedAPITokens []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" && len(hashedAPITokens) == 0 {
			c.Next()
			return
		}
		if _, ok := publicPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		token := extractBearerToken(c.Request.Header.Get("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		if matchesAPIToken(token, hashedAPITokens) {
			c.Next()
			return
		}

		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unrecognized token"})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token: " + err.Error()})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// matchesAPIToken reports whether token matches any bcrypt hash in
// hashedTokens, the static-credential path alongside JWT auth.
func matchesAPIToken(token string, hashedTokens []string) bool {
	for _, hashed := range hashedTokens {
		if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(token)) == nil {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
