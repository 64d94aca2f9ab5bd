package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextKey is where the middleware stores validated claims.
	ContextKey = "auth_claims"

	bearerPrefix = "Bearer "
	// RoleOperator marks principals allowed to drive withdrawal transitions.
	RoleOperator = "operator"
)

// Claims carries the authenticated subject plus its roles.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// UserID returns the token subject.
func (claims *Claims) UserID() string {
	return claims.Subject
}

// HasRole reports whether the subject carries the given role.
func (claims *Claims) HasRole(role string) bool {
	for _, candidate := range claims.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// Validator verifies HS256 bearer tokens.
type Validator struct {
	signingKey []byte
	issuer     string
}

// NewValidator wires a Validator.
func NewValidator(signingKey []byte, issuer string) (*Validator, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	return &Validator{signingKey: signingKey, issuer: issuer}, nil
}

// Parse validates a raw token string and returns its claims.
func (validator *Validator) Parse(rawToken string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return validator.signingKey, nil
	}, jwt.WithIssuer(validator.issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("token subject is empty")
	}
	return claims, nil
}

// GinMiddleware rejects requests without a valid bearer token and stores the
// claims under ContextKey.
func (validator *Validator) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "missing bearer token"},
			})
			return
		}
		claims, err := validator.Parse(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "invalid bearer token"},
			})
			return
		}
		ctx.Set(ContextKey, claims)
		ctx.Next()
	}
}

// RequireRole gates a route group on a role carried in the claims.
func RequireRole(role string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := ClaimsFromContext(ctx)
		if claims == nil || !claims.HasRole(role) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "forbidden", "message": "insufficient role"},
			})
			return
		}
		ctx.Next()
	}
}

// ClaimsFromContext returns the claims set by GinMiddleware, or nil.
func ClaimsFromContext(ctx *gin.Context) *Claims {
	claimsValue, ok := ctx.Get(ContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*Claims)
	return claims
}

// GenerateToken issues an HS256 token for the subject; ttl <= 0 means no
// expiry claim.
func GenerateToken(signingKey []byte, issuer string, subject string, roles []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("subject is required")
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
		Roles: roles,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().UTC().Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}
