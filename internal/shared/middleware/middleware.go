package middleware

import (
	"net/http"
	"strings"
	"time"

	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/shared/utils/response"
	"evently-waitlist/internal/users"
	"evently-waitlist/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Auth validates and issues HS256 access tokens
type Auth struct {
	secret []byte
	log    *logger.Logger
	now    func() time.Time
}

func NewAuth(cfg config.JWTConfig, log *logger.Logger) *Auth {
	return &Auth{
		secret: []byte(cfg.Secret),
		log:    logger.OrDefault(log),
		now:    time.Now,
	}
}

// IssueAccessToken signs a token carrying the claims JWTAuth expects
func (a *Auth) IssueAccessToken(userID uuid.UUID, email string, role users.Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"email":   email,
		"role":    string(role),
		"type":    "access",
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) parse(header string) (jwt.MapClaims, string) {
	if header == "" {
		return nil, "Authorization header is required"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, "authorization header format must be Bearer {token}"
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, "invalid or expired token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "invalid token claims"
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, "invalid token type"
	}
	return claims, ""
}

func setClaims(c *gin.Context, claims jwt.MapClaims) {
	c.Set("user_id", claims["user_id"])
	c.Set("user_email", claims["email"])
	c.Set("user_role", claims["role"])
}

// JWTAuth rejects requests without a valid access token
func (a *Auth) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, reason := a.parse(c.GetHeader("Authorization"))
		if claims == nil {
			a.log.LogAuthFailure(c.Request.Context(), reason, c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, reason, nil, nil)
			c.Abort()
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth validates JWT token if present but doesn't require it
func (a *Auth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, _ := a.parse(c.GetHeader("Authorization")); claims != nil {
			setClaims(c, claims)
		}
		c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(requiredRole string) gin.HandlerFunc {
	return RequireRoles(requiredRole)
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(string(users.RoleAdmin))
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		for _, required := range requiredRoles {
			if role == required {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// IsAdmin reports whether the authenticated caller has the admin role
func IsAdmin(c *gin.Context) bool {
	role, _ := c.Get("user_role")
	r, _ := role.(string)
	return r == string(users.RoleAdmin)
}

// RequestLogger logs every request with its latency, and errors at warn level
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log)
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		reqLog := log.WithRequestID(requestID)
		if status := c.Writer.Status(); status >= http.StatusInternalServerError && len(c.Errors) > 0 {
			reqLog.LogHTTPError(c, c.Errors.Last(), status)
			return
		}
		reqLog.LogHTTPRequest(c, time.Since(start))
	}
}
