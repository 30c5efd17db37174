// Package auth implements the bearer-token check for the HTTP facade. The
// facade itself is an out-of-scope collaborator per spec.md §1, but the
// dispatcher ships a default implementation the same way the teacher ships
// one for its own API, hand-rolled with stdlib HMAC rather than a JWT
// library — no example in the retrieval pack imports one either.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claims identifies the caller of the dispatcher's HTTP facade.
type Claims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

const tokenLifetime = 24 * time.Hour

// Validator issues and checks HMAC-signed bearer tokens.
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator builds a Validator. secret must be non-empty; callers
// failing to configure SHADE_JWT_SECRET get a clearly-insecure dev default
// rather than a silent empty-secret signer (see loadConfig in dispatcher/config.go).
func NewValidator(secret, issuer string) *Validator {
	return &Validator{secret: []byte(secret), issuer: issuer}
}

// Issue mints a token for subject, valid for 24h.
func (v *Validator) Issue(subject string) (string, error) {
	now := time.Now().Unix()
	claims := Claims{Subject: subject, IssuedAt: now, ExpiresAt: now + int64(tokenLifetime.Seconds())}

	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, _ := json.Marshal(header)
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signed := encodeSegment(headerJSON) + "." + encodeSegment(claimsJSON)
	return signed + "." + v.sign(signed), nil
}

// Validate parses and verifies a bearer token string.
func (v *Validator) Validate(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("auth: malformed token")
	}

	signed := parts[0] + "." + parts[1]
	if v.sign(signed) != parts[2] {
		return nil, errors.New("auth: bad signature")
	}

	claimsJSON, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("auth: decoding claims: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("auth: unmarshalling claims: %w", err)
	}

	if time.Now().Unix() > claims.ExpiresAt {
		return nil, errors.New("auth: token expired")
	}
	return &claims, nil
}

func (v *Validator) sign(segment string) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(segment))
	return encodeSegment(h.Sum(nil))
}

func encodeSegment(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func decodeSegment(s string) ([]byte, error) {
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return base64.URLEncoding.DecodeString(s)
}
