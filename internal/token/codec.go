package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose names a token category. Each purpose signs with its own
// secret, so a token minted for one purpose never verifies under
// another.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
	PurposeReset   Purpose = "reset"
)

var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrUnknownPurpose   = errors.New("unknown token purpose")
)

// Identity is the payload carried by a signed token. Email is only
// baked into access tokens.
type Identity struct {
	SubjectID uuid.UUID
	Email     string
}

type authClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	keys      map[Purpose][]byte
	accessTTL time.Duration
	resetTTL  time.Duration
}

func NewCodec(accessSecret, refreshSecret, resetSecret string, accessTTL, resetTTL time.Duration) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" || resetSecret == "" {
		return nil, errors.New("all three signing secrets are required")
	}
	if accessTTL <= 0 || resetTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &Codec{
		keys: map[Purpose][]byte{
			PurposeAccess:  []byte(accessSecret),
			PurposeRefresh: []byte(refreshSecret),
			PurposeReset:   []byte(resetSecret),
		},
		accessTTL: accessTTL,
		resetTTL:  resetTTL,
	}, nil
}

// Issue signs a token for identity under the purpose's key. Access and
// reset tokens embed an expiry; refresh tokens do not — their lifetime
// is enforced by the ledger row alone.
func (c *Codec) Issue(purpose Purpose, identity Identity) (string, error) {
	key, ok := c.keys[purpose]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}

	// iat has second precision and HS256 is deterministic, so the jti
	// is what keeps two same-second tokens for one subject distinct.
	now := time.Now()
	claims := authClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  identity.SubjectID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	switch purpose {
	case PurposeAccess:
		claims.Email = identity.Email
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.accessTTL))
	case PurposeReset:
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.resetTTL))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Verify checks tokenStr against the purpose's key and the embedded
// expiry when one is present, and returns the identity it carries.
func (c *Codec) Verify(purpose Purpose, tokenStr string) (*Identity, error) {
	key, ok := c.keys[purpose]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}

	claims := &authClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}

	subjectID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrMalformed
	}

	return &Identity{SubjectID: subjectID, Email: claims.Email}, nil
}
