package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zanzhit/securecam/internal/domain/errs"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindPAT     Kind = "pat"
)

type Header struct {
	Alg string
	Typ string
}

// Payload is readable by anyone holding the token; only its integrity is protected.
type Payload struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
	Kind      Kind
}

type claims struct {
	Kind Kind `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

func HS(alg string) Header {
	return Header{Alg: alg, Typ: "JWT"}
}

func Supported(alg string) bool {
	_, ok := signingMethod(alg)
	return ok
}

func Encode(header Header, payload Payload, secret string) (string, error) {
	method, ok := signingMethod(header.Alg)
	if !ok {
		return "", fmt.Errorf("%w: unsupported algorithm %q", errs.ErrInvalidToken, header.Alg)
	}

	c := claims{
		Kind: payload.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Subject,
			ExpiresAt: jwt.NewNumericDate(payload.ExpiresAt),
			ID:        payload.ID,
		},
	}
	if !payload.IssuedAt.IsZero() {
		c.IssuedAt = jwt.NewNumericDate(payload.IssuedAt)
	}

	token := jwt.NewWithClaims(method, c)
	if header.Typ != "" {
		token.Header["typ"] = header.Typ
	}

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Decode verifies signature, algorithm and expiry. Every failure wraps errs.ErrInvalidToken.
func Decode(tokenString, secret, alg string) (Payload, error) {
	if _, ok := signingMethod(alg); !ok {
		return Payload{}, fmt.Errorf("%w: unsupported algorithm %q", errs.ErrInvalidToken, alg)
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, fmt.Errorf("%w: token expired", errs.ErrInvalidToken)
		}
		return Payload{}, fmt.Errorf("%w: %w", errs.ErrInvalidToken, err)
	}

	if !token.Valid || c.Subject == "" {
		return Payload{}, errs.ErrInvalidToken
	}

	p := Payload{
		Subject:   c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
		ID:        c.ID,
		Kind:      c.Kind,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}

	return p, nil
}

// UserID parses the subject as a positive user id.
func (p Payload) UserID() (int64, error) {
	id, err := strconv.ParseInt(p.Subject, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: subject is not a user id", errs.ErrInvalidToken)
	}

	return id, nil
}

func signingMethod(alg string) (jwt.SigningMethod, bool) {
	switch alg {
	case "HS256":
		return jwt.SigningMethodHS256, true
	case "HS384":
		return jwt.SigningMethodHS384, true
	case "HS512":
		return jwt.SigningMethodHS512, true
	}

	return nil, false
}
