package testutil

import (
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"

	"github.com/renowix/surveyor-api/middleware"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing. There is
// deliberately no role claim: roles are derived from the profile's email,
// never carried in the token.
func MockValidatedClaims(subject, issuer string, scopes []string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: strings.Join(scopes, " "),
		},
	}
}

// MockAuthMiddleware returns a middleware that populates the Gin context the
// same way EnsureValidToken does, for the given fixed identity.
func MockAuthMiddleware(auth0ID, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Set("access_token", accessToken)
		c.Set("validated_claims", MockValidatedClaims(auth0ID, "https://test.auth0.com/", nil))
		c.Next()
	}
}

// TokenAuthMiddleware maps bearer tokens to identities, so acceptance tests
// can drive multiple actors through one server the way real clients would.
func TokenAuthMiddleware(tokenToUID map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(401, gin.H{
				"success": false,
				"error":   gin.H{"code": "INVALID_TOKEN", "message": "Failed to validate JWT."},
			})
			return
		}

		uid, known := tokenToUID[token]
		if !known {
			c.AbortWithStatusJSON(401, gin.H{
				"success": false,
				"error":   gin.H{"code": "INVALID_TOKEN", "message": "Failed to validate JWT."},
			})
			return
		}

		c.Set("user_id", uid)
		c.Set("access_token", token)
		c.Set("validated_claims", MockValidatedClaims(uid, "https://test.auth0.com/", nil))
		c.Next()
	}
}
