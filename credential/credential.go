// Package credential protects stored passwords and issues session tokens.
//
// Passwords are encrypted with RSA-OAEP under the process key and decrypted
// with the same key for login comparison. Only the holder of the key file can
// do either, so the scheme is effectively symmetric.
package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrCrypto covers key-file and cipher failures.
	ErrCrypto = errors.New("crypto error")
	// ErrAuth is returned for expired, forged or otherwise invalid tokens.
	ErrAuth = errors.New("auth error")
)

const (
	defaultTokenTTL = 15 * time.Minute
	defaultIssuer   = "onboard"
)

// Claims are the session token claims.
type Claims struct {
	AccountID string `json:"aid"`
	jwt.RegisteredClaims
}

// Manager encrypts passwords and signs tokens with one RSA key.
type Manager struct {
	key    *rsa.PrivateKey
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim written to and required of tokens.
func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

func NewManager(key *rsa.PrivateKey, opts ...Option) (*Manager, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: no key loaded", ErrCrypto)
	}
	m := &Manager{
		key:    key,
		ttl:    defaultTokenTTL,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// EncryptPassword returns the base64 RSA-OAEP ciphertext of plaintext.
func (m *Manager) EncryptPassword(plaintext string) (string, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &m.key.PublicKey, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("%w: encrypt password: %v", ErrCrypto, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptPassword reverses EncryptPassword.
func (m *Manager) DecryptPassword(ciphertext string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode password: %v", ErrCrypto, err)
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, m.key, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decrypt password: %v", ErrCrypto, err)
	}
	return string(pt), nil
}

// ComparePassword reports whether plaintext matches the stored ciphertext.
func (m *Manager) ComparePassword(ciphertext, plaintext string) (bool, error) {
	stored, err := m.DecryptPassword(ciphertext)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(plaintext)) == 1, nil
}

// IssueToken signs a short-lived RS256 token for accountID.
func (m *Manager) IssueToken(accountID string) (string, error) {
	now := m.now()
	claims := Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", ErrCrypto, err)
	}
	return signed, nil
}

// VerifyToken checks token and returns the account id it was issued for.
func (m *Manager) VerifyToken(token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return &m.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.issuer),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if !parsed.Valid || claims.AccountID == "" {
		return "", fmt.Errorf("%w: invalid token", ErrAuth)
	}
	return claims.AccountID, nil
}

// TTL returns the token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
