package middleware

import (
	"context"
	"net/http"
	"strings"

	"channel-service/internal/client"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// AuthValidator checks tokens against the identity service and falls
// back to local JWT validation when the service is unreachable.
type AuthValidator struct {
	roleClient client.RoleClient
	secretKey  string
	logger     *zap.Logger
}

func NewAuthValidator(roleClient client.RoleClient, secretKey string, logger *zap.Logger) *AuthValidator {
	return &AuthValidator{
		roleClient: roleClient,
		secretKey:  secretKey,
		logger:     logger,
	}
}

func (v *AuthValidator) ValidateToken(ctx context.Context, tokenString string) (uuid.UUID, error) {
	if v.roleClient != nil {
		validation, err := v.roleClient.ValidateToken(ctx, tokenString)
		if err == nil && validation.Valid {
			return uuid.Parse(validation.UserID)
		}
		v.logger.Debug("identity service validation failed, falling back to local", zap.Error(err))
	}

	return v.validateLocally(tokenString)
}

func (v *AuthValidator) validateLocally(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(v.secretKey), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	var userIDStr string
	for _, key := range []string{"sub", "userId", "user_id"} {
		if val, exists := claims[key]; exists {
			if s, ok := val.(string); ok {
				userIDStr = s
				break
			}
		}
	}
	if userIDStr == "" {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	return uuid.Parse(userIDStr)
}

// Auth validates the bearer token and stores the caller's user id and
// token in the request context.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		userID, err := validator.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", userID.String())
		c.Set("token", parts[1])
		c.Next()
	}
}

// GetUserID returns the authenticated user id set by Auth.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	s, ok := userID.(string)
	return s, ok
}

// GetToken returns the raw bearer token set by Auth.
func GetToken(c *gin.Context) (string, bool) {
	token, exists := c.Get("token")
	if !exists {
		return "", false
	}
	s, ok := token.(string)
	return s, ok
}
