package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "autograde/pkg/errors"
	"autograde/pkg/utils/contextkey"
	"autograde/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the grading API.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleService = "service"
)

const (
	userIDContextKey   = "user_id"
	userRoleContextKey = "user_role"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

// Privileged reports whether the caller may see hidden test data.
func (p Principal) Privileged() bool {
	return p.Role == RoleTeacher || p.Role == RoleService
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for subject with the given role.
func (a *Authenticator) Issue(subject, role string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("jwt secret is required")
	}
	now := time.Now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate parses raw and returns the caller it identifies.
func (a *Authenticator) Authenticate(raw string) (Principal, error) {
	if raw == "" || len(a.secret) == 0 {
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	switch claims.Role {
	case RoleStudent, RoleTeacher, RoleService:
	default:
		return Principal{}, pkgerrors.New(pkgerrors.TokenInvalid).WithMessage("unknown role")
	}
	return Principal{Subject: claims.Subject, Role: claims.Role}, nil
}

// AuthMiddleware enforces JWT validation and, when roles is non-empty, role membership.
func AuthMiddleware(auth *Authenticator, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth unavailable")
			return
		}
		p, err := auth.Authenticate(extractBearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if len(roles) > 0 && !hasRole(p.Role, roles) {
			response.AbortWithErrorCode(c, pkgerrors.Forbidden, "insufficient role")
			return
		}

		c.Set(userIDContextKey, p.Subject)
		c.Set(userRoleContextKey, p.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, p.Subject)
		ctx = context.WithValue(ctx, contextkey.UserRole, p.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PrincipalFrom returns the caller stored by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	role := c.GetString(userRoleContextKey)
	if role == "" {
		return Principal{}, false
	}
	return Principal{Subject: c.GetString(userIDContextKey), Role: role}, true
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
