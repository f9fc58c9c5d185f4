package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"stagesync/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerIDKey gin.Context 中的当前用户 id
const OwnerIDKey = "owner_id"

// APIAudience 访问令牌的 aud；不带 aud 的旧令牌仍然接受
const APIAudience = "stagesync_api"

// Claims API 访问令牌；sub 为用户 id，兼容旧客户端的 user_id 字段
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}

func (c *Claims) owner() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// IssueToken 签发 HS256 访问令牌（CLI 和测试使用）
func IssueToken(secret, ownerID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" || ownerID == "" {
		return "", errors.New("secret and owner id required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			Audience:  jwt.ClaimStrings{APIAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

// ParseToken 校验签名和有效期，返回用户 id
func ParseToken(secret, tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if len(claims.Audience) > 0 && !slices.Contains(claims.Audience, APIAudience) {
		return "", errors.New("token audience is not the api")
	}
	owner := claims.owner()
	if owner == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return owner, nil
}

// AuthMiddleware enforces Authorization: Bearer <jwt> and stores the owner id under OwnerIDKey.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	secret := ""
	if cfg != nil {
		secret = cfg.JWT.Secret
	}
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "missing bearer token",
			})
			return
		}
		token := strings.TrimSpace(ah[len("Bearer "):])
		if token == "" || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "invalid token or server misconfig",
			})
			return
		}
		owner, err := ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": err.Error(),
			})
			return
		}
		c.Set(OwnerIDKey, owner)
		c.Next()
	}
}

// OwnerID returns the authenticated owner or "".
func OwnerID(c *gin.Context) string {
	return c.GetString(OwnerIDKey)
}
