package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinSecretLength is the minimum accepted HMAC secret size in bytes.
const MinSecretLength = 32

// DefaultTokenExpiry is used when no expiry is configured.
const DefaultTokenExpiry = 60 * time.Minute

// ErrSecretTooShort is returned when the signing secret is shorter than MinSecretLength.
var ErrSecretTooShort = fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)

// Claims is the claim set carried by a session token.
type Claims struct {
	UserID   int    `json:"uid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig holds the settings for a TokenIssuer.
type TokenIssuerConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Expiry   time.Duration
}

// TokenIssuer mints and validates HS256 session tokens.
//
// Tokens are signed, not encrypted: claims are readable by anyone holding the token.
// A token is either valid or it is not; the reason for a rejection is only logged.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewTokenIssuer creates a new token issuer
func NewTokenIssuer(cfg TokenIssuerConfig, logger *zap.Logger) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		expiry:   cfg.Expiry,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Expiry returns the lifetime given to issued tokens.
func (ti *TokenIssuer) Expiry() time.Duration {
	return ti.expiry
}

// Issue creates a signed token for the user
func (ti *TokenIssuer) Issue(userID int, username, email string) (string, error) {
	token, _, err := ti.IssueWithExpiry(userID, username, email)
	return token, err
}

// IssueWithExpiry creates a signed token and also returns its absolute expiry time.
func (ti *TokenIssuer) IssueWithExpiry(userID int, username, email string) (string, time.Time, error) {
	now := ti.now()
	expiresAt := now.Add(ti.expiry)

	claims := Claims{
		UserID:   userID,
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if ti.audience != "" {
		claims.Audience = jwt.ClaimStrings{ti.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate checks the token and returns the subject user id.
//
// Every kind of failure (bad signature, wrong issuer or audience, expired, malformed)
// yields ok == false.
func (ti *TokenIssuer) Validate(tokenString string) (int, bool) {
	claims, ok := ti.Claims(tokenString)
	if !ok {
		return 0, false
	}
	return claims.UserID, true
}

// Claims validates the token and returns its full claim set.
func (ti *TokenIssuer) Claims(tokenString string) (*Claims, bool) {
	claims, err := ti.parse(tokenString)
	if err != nil {
		ti.logger.Debug("token rejected", zap.Error(err))
		return nil, false
	}
	return claims, true
}

func (ti *TokenIssuer) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("empty token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(ti.issuer),
		jwt.WithTimeFunc(ti.now),
	}
	if ti.audience != "" {
		opts = append(opts, jwt.WithAudience(ti.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	// The subject and the uid claim must agree
	if claims.Subject != strconv.Itoa(claims.UserID) {
		return nil, errors.New("subject does not match user id")
	}
	if claims.UserID <= 0 {
		return nil, errors.New("user id not found in token")
	}

	return claims, nil
}
