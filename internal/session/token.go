package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/domain"
)

// DefaultExpiryBuffer treats tokens as expired slightly before their exp.
const DefaultExpiryBuffer = 5 * time.Second

// UserID accepts both numeric and string user ids from the auth backend.
type UserID string

func (u *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("userId: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// Claims are the access token fields the gate reads.
type Claims struct {
	jwt.RegisteredClaims
	UserID     UserID `json:"userId"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

// TokenState is the outcome of inspecting one token.
type TokenState struct {
	Present bool
	Valid   bool
	Claims  *Claims
}

// Decoder parses tokens. With a secret it verifies HMAC signatures,
// otherwise it only decodes the payload and leaves verification upstream.
type Decoder struct {
	secret []byte
	buffer time.Duration
	parser *jwt.Parser
}

func NewDecoder(secret []byte, buffer time.Duration) *Decoder {
	if buffer < 0 {
		buffer = 0
	}
	return &Decoder{
		secret: secret,
		buffer: buffer,
		parser: jwt.NewParser(
			jwt.WithoutClaimsValidation(),
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		),
	}
}

// Decode returns the token's claims without checking expiry.
func (d *Decoder) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	claims := &Claims{}
	if len(d.secret) == 0 {
		if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
		}
		return claims, nil
	}

	parsed, err := d.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return d.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// Expired reports whether claims are past exp minus the buffer. Claims
// without exp are treated as expired.
func (d *Decoder) Expired(claims *Claims, now time.Time) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !now.Before(claims.ExpiresAt.Time.Add(-d.buffer))
}

// Validate decodes token and checks expiry.
func (d *Decoder) Validate(token string, now time.Time) (*Claims, error) {
	claims, err := d.Decode(token)
	if err != nil {
		return nil, err
	}
	if d.Expired(claims, now) {
		return claims, domain.ErrTokenExpired
	}
	return claims, nil
}

// Inspect never fails: undecodable tokens are reported as present but invalid.
func (d *Decoder) Inspect(token string, now time.Time) TokenState {
	if strings.TrimSpace(token) == "" {
		return TokenState{}
	}
	claims, err := d.Validate(token, now)
	if err != nil {
		return TokenState{Present: true}
	}
	return TokenState{Present: true, Valid: true, Claims: claims}
}

// InspectRefresh checks only a refresh token's expiry. The backend signs and
// verifies refresh tokens, so the signature is not checked here and a token
// that is not a JWT at all is treated as usable.
func (d *Decoder) InspectRefresh(token string, now time.Time) TokenState {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenState{}
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
		return TokenState{Present: true, Valid: true}
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return TokenState{Present: true}
	}
	return TokenState{Present: true, Valid: true}
}
