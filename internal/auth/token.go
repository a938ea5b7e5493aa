// Package auth mints the short-lived actor tokens attached to downstream
// stage-trigger calls.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"meetingflow/internal/config"
	"meetingflow/internal/services"
)

// Claims identify who moved a meeting and through which event.
type Claims struct {
	Actor     string `json:"actor"`
	MeetingID int64  `json:"meeting_id"`
	Event     string `json:"event,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 actor tokens.
type TokenService struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a service from the auth section of cfg.
func NewTokenService(cfg config.Auth) (*TokenService, error) {
	if strings.TrimSpace(cfg.SigningKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "auth", "token service", "auth.signing_key is required", nil)
	}
	ttl := time.Duration(cfg.TokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenService{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// GenerateActorToken signs a token for actor acting on meetingID.
func (ts *TokenService) GenerateActorToken(actor string, meetingID int64, event string) (string, error) {
	now := ts.now()
	claims := &Claims{
		Actor:     actor,
		MeetingID: meetingID,
		Event:     event,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    ts.issuer,
			Subject:   strconv.FormatInt(meetingID, 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("sign actor token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses tokenString and checks signature, issuer and expiry.
func (ts *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(ts.now)}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ExtractTokenFromHeader strips the Bearer prefix from an Authorization header.
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is required")
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", errors.New("authorization header must start with Bearer")
	}
	return authHeader[len(bearerPrefix):], nil
}
