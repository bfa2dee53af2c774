// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jason-s-yu/uno/internal/models"
)

// ErrInvalidToken covers every rejected bearer token.
var ErrInvalidToken = errors.New("invalid token")

// Sessions signs and verifies user tokens with an ed25519 key pair.
type Sessions struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	// expire is the token lifetime; 0 means tokens never expire.
	expire time.Duration
	now    func() time.Time
}

// NewSessions generates a fresh ed25519 key pair at runtime.
func NewSessions(expire time.Duration) (*Sessions, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Sessions{privateKey: priv, publicKey: pub, expire: expire, now: time.Now}, nil
}

// NewSessionsFromPath reads an ed25519 private key from file.
func NewSessionsFromPath(privatePath string, expire time.Duration) (*Sessions, error) {
	data, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key file %s: want %d bytes, got %d", privatePath, ed25519.PrivateKeySize, len(data))
	}
	priv := ed25519.PrivateKey(data)
	return &Sessions{
		privateKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
		expire:     expire,
		now:        time.Now,
	}, nil
}

// CreateJWT creates a signed JWT token with "sub" = user id and the display fields of u.
func (s *Sessions) CreateJWT(u models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(int64(u.ID), 10),
		"name": u.FirstName,
		"iat":  s.now().Unix(),
	}
	if u.Username != "" {
		claims["username"] = u.Username
	}
	if s.expire > 0 {
		claims["exp"] = s.now().Add(s.expire).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// AuthenticateJWT verifies a JWT string and returns the user it was issued to.
func (s *Sessions) AuthenticateJWT(tokenString string) (models.User, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return models.User{}, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return models.User{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: bad sub %q", ErrInvalidToken, sub)
	}

	u := models.User{ID: models.UserID(id)}
	u.FirstName, _ = claims["name"].(string)
	u.Username, _ = claims["username"].(string)
	return u, nil
}

// NewGuest makes up an identity for a visitor without an account.
func NewGuest(name string) models.User {
	return models.User{ID: models.UserID(rand.Int64N(1<<53) + 1), FirstName: name}
}
