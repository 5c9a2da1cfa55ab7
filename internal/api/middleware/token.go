package middleware

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/orrn/remoteprint/internal/db"
	"github.com/orrn/remoteprint/internal/utils"
)

const (
	tokenIssuerName      = "remoteprint"
	tokenTTL             = 24 * time.Hour
	settingsKeyJWTSecret = "jwt_secret"
)

var errInvalidToken = errors.New("invalid token")

// tokenIssuer signs and checks HS256 session tokens.
type tokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func newTokenIssuer(key []byte) *tokenIssuer {
	return &tokenIssuer{key: key, ttl: tokenTTL, now: time.Now}
}

// loadSigningKey reads the token key from settings, creating it on first start.
func loadSigningKey(ctx context.Context) ([]byte, error) {
	setting, err := db.Settings.GetSetting(ctx, settingsKeyJWTSecret)
	switch {
	case err == nil:
		key, err := hex.DecodeString(setting.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode jwt secret: %w", err)
		}
		return key, nil
	case errors.Is(err, sql.ErrNoRows):
		key := utils.GenerateRandomKey()
		if err := db.Settings.SetSetting(ctx, settingsKeyJWTSecret, hex.EncodeToString(key), false); err != nil {
			return nil, fmt.Errorf("failed to store jwt secret: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("failed to load jwt secret: %w", err)
	}
}

func (t *tokenIssuer) issue(subject string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    tokenIssuerName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// parse returns the claims of a valid token carrying a subject.
func (t *tokenIssuer) parse(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	return claims, nil
}

// requestToken prefers an Authorization bearer token and falls back to the
// session cookie.
func requestToken(c *gin.Context) string {
	if token := bearerToken(c.Request); token != "" {
		return token
	}
	cookie, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
