package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v4"
)

const ctxUserID = "user_id"

var errNoSigningKey = errors.New("no jwt signing key configured")

// UserIDFromCtx returns the authenticated user id set by JWTAuth.
func UserIDFromCtx(c echo.Context) (string, bool) {
	id, ok := c.Get(ctxUserID).(string)
	return id, ok && id != ""
}

// JWTAuth validates HS256 bearer tokens whose subject is the user's UUID.
// An empty secret rejects every token.
func JWTAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "No autorizado"})
			}
			userID, err := subject(raw, secret)
			if err != nil {
				c.Logger().Debugf("jwt rejected: %v", err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Sesión inválida o expirada"})
			}
			c.Set(ctxUserID, userID)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

func subject(raw string, secret []byte) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		if len(secret) == 0 {
			return nil, errNoSigningKey
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
