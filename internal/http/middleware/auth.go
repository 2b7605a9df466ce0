package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/questweaver/internal/platform/ctxutil"
	"github.com/yungbote/questweaver/internal/platform/logger"
)

// AuthMiddleware verifies HS256 bearer tokens. With no secret configured
// every request is anonymous.
type AuthMiddleware struct {
	log      *logger.Logger
	secret   []byte
	required bool
}

func NewAuthMiddleware(log *logger.Logger, secret string, required bool) *AuthMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthMiddleware{
		log:      log.With("Middleware", "AuthMiddleware"),
		secret:   []byte(strings.TrimSpace(secret)),
		required: required,
	}
}

func (am *AuthMiddleware) Enabled() bool { return am != nil && len(am.secret) > 0 }

// Authenticate attaches the caller to the request context. A present but
// invalid token is always rejected; a missing one only when auth is required.
func (am *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			c.Next()
			return
		}
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			if am.required {
				abortAuth(c, http.StatusUnauthorized, "missing or invalid token")
				return
			}
			c.Next()
			return
		}
		rd, err := am.parse(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			abortAuth(c, http.StatusUnauthorized, err.Error())
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

func (am *AuthMiddleware) parse(tokenString string) (*ctxutil.RequestData, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, errors.New("token has no subject")
	}
	rd := &ctxutil.RequestData{Subject: sub}
	if role, ok := claims["role"].(string); ok {
		rd.Role = role
	}
	if email, ok := claims["email"].(string); ok {
		rd.Email = email
	}
	return rd, nil
}

func abortAuth(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"message": msg, "code": "unauthorized"},
	})
}

func extractTokenFromAll(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
