// FILE: internal/pkg/serverutils/jwt_middleware.go
package serverutils

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const UserIDLocal = "user_id"

var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingUserID = errors.New("token missing user_id")
)

// ParseUserToken verifies an HS256 token issued by the identity provider and
// returns its user_id claim. An empty secret rejects every token.
func ParseUserToken(secret, tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrMissingToken
	}
	if secret == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrMissingUserID
	}
	return userID, nil
}

// IssueUserToken signs a token for userID. The identity provider owns issuance in
// production; this is used by tooling and tests.
func IssueUserToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken reads the token from the Authorization header, falling back to the
// "token" query parameter (browsers cannot set headers on a WebSocket handshake).
func BearerToken(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ctx.Query("token")
}

func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		userID, err := ParseUserToken(secret, BearerToken(ctx))
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, err.Error()))
		}

		ctx.Locals(UserIDLocal, userID)
		return ctx.Next()
	}
}

// CurrentUserID returns the identity attached by the JWT middleware.
func CurrentUserID(ctx *fiber.Ctx) (string, bool) {
	userID, ok := ctx.Locals(UserIDLocal).(string)
	return userID, ok && userID != ""
}
