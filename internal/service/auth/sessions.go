package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kittipos-w/paygate/internal/models"
)

const (
	defaultSessionTTL    = 15 * time.Minute
	defaultSigningMethod = "HS256"
)

var ErrSessionInvalid = errors.New("session token is invalid")

type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID uuid.UUID `json:"aid"`
}

// Session manager config with sensible defaults
type SessionConfig struct {
	// Secret key to sign session tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set then default is used
	Alg string

	// Session token lifetime
	// If not set then default is used
	TTL time.Duration
}

// SessionManager issues and verifies short lived JWT session tokens
type SessionManager struct {
	key string
	alg jwt.SigningMethod
	ttl time.Duration
}

func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	if cfg.TTL == 0 {
		cfg.TTL = defaultSessionTTL
	}

	return &SessionManager{
		key: cfg.SecretKey,
		alg: jwt.GetSigningMethod(cfg.Alg),
		ttl: cfg.TTL,
	}, nil
}

// Issue signed session token for the account
func (m *SessionManager) Issue(account models.Account) (token string, expiresAt time.Time, err error) {
	now := time.Now().Truncate(time.Second)
	expiresAt = now.Add(m.ttl)

	session := jwt.NewWithClaims(
		m.alg,
		SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			AccountID: account.ID,
		},
	)

	token, err = session.SignedString([]byte(m.key))
	if err != nil {
		return "", expiresAt, fmt.Errorf("error while signing session token. Err: %w", err)
	}

	return token, expiresAt, nil
}

// Parse session token and return the account id it was issued for
func (m *SessionManager) Parse(token string) (uuid.UUID, error) {
	claims := &SessionClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.alg.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.key), nil
	})

	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrSessionInvalid
	}

	return claims.AccountID, nil
}
