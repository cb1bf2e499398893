package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	authUserKey     = "auth_user_id"
	authRoleKey     = "auth_role"

	RoleAdmin = "admin"
)

// RequestID keeps an incoming X-Request-ID or issues a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// AccessLog attaches a request-scoped logger to the request context and logs
// one line per request when it completes.
func AccessLog(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		l := base.With("request_id", GetRequestID(c))
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), l))

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		l.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
			"ip", c.ClientIP(),
		)
	}
}

// CORS allows the listed origins, or any origin when the list is empty.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "Accept", "Origin", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// Auth requires an HS256 bearer token with user_id and role claims.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing bearer token", Kind: "UNAUTHENTICATED", RequestID: GetRequestID(c)})
			return
		}

		userID, role, err := parseToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token", Kind: "UNAUTHENTICATED", RequestID: GetRequestID(c)})
			return
		}

		c.Set(authUserKey, userID)
		c.Set(authRoleKey, role)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(authRoleKey) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "admin role required", Kind: "PERMISSION_DENIED", RequestID: GetRequestID(c)})
			return
		}
		c.Next()
	}
}

func parseToken(secret []byte, raw string) (int64, string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errors.New("unexpected claims type")
	}
	uid, ok := claims["user_id"].(float64)
	if !ok || uid <= 0 {
		return 0, "", errors.New("user_id claim missing")
	}
	role, _ := claims["role"].(string)
	return int64(uid), role, nil
}

// caller returns the authenticated user, or ok=false when auth is disabled.
func caller(c *gin.Context) (userID int64, admin bool, ok bool) {
	v, exists := c.Get(authUserKey)
	if !exists {
		return 0, false, false
	}
	return v.(int64), c.GetString(authRoleKey) == RoleAdmin, true
}

// canAccess lets admins and the owning user through; everyone passes when auth is off.
func canAccess(c *gin.Context, ownerID int64) bool {
	uid, admin, ok := caller(c)
	return !ok || admin || uid == ownerID
}
