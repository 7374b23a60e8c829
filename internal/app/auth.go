package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"booking-scheduler/internal/booking"
)

const actorKey = "actor"

// Claims is the JWT payload issued by the accounts service. The subject is
// the user or provider id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator accepts HS256 JWTs or static operator tokens. Static tokens
// act as admins.
type Authenticator struct {
	secret []byte
	static map[string]struct{}
}

func NewAuthenticator(jwtSecret string, staticTokens []string) *Authenticator {
	a := &Authenticator{static: map[string]struct{}{}}
	if s := strings.TrimSpace(jwtSecret); s != "" {
		a.secret = []byte(s)
	}
	for _, t := range staticTokens {
		if t = strings.TrimSpace(t); t != "" {
			a.static[t] = struct{}{}
		}
	}
	return a
}

// Middleware rejects unauthenticated requests and stores the caller as a
// booking.Actor on the context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			abortUnauthorized(c, "missing authorization")
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization format")
			return
		}
		actor, ok := a.authenticate(parts[1])
		if !ok {
			abortUnauthorized(c, "invalid token")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func (a *Authenticator) authenticate(tokenStr string) (booking.Actor, bool) {
	if a.secret != nil {
		var claims Claims
		_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
			return a.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))
		if err == nil && claims.Subject != "" {
			role := booking.Role(claims.Role)
			switch role {
			case "":
				role = booking.RoleUser
			case booking.RoleUser, booking.RoleProvider, booking.RoleAdmin:
			default:
				return booking.Actor{}, false
			}
			return booking.Actor{ID: claims.Subject, Role: role}, true
		}
	}
	if _, ok := a.static[tokenStr]; ok {
		return booking.Actor{ID: "operator", Role: booking.RoleAdmin}, true
	}
	return booking.Actor{}, false
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "UNAUTHORIZED"})
}

func actorFrom(c *gin.Context) booking.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(booking.Actor); ok {
			return actor
		}
	}
	return booking.Actor{}
}

// requireAdmin guards operator-only routes.
func requireAdmin(c *gin.Context) {
	if !actorFrom(c).IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only", "code": "FORBIDDEN"})
		return
	}
	c.Next()
}
