// Package hasher stores passwords as "<salt>:<argon2id PHC string>".
package hasher

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/zanzhit/securecam/internal/domain/errs"
)

const (
	MinSaltLength = 8
	saltBytes     = 16
	keyLength     = 32
)

type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
}

type Hasher struct {
	params Params
}

func New(params Params) *Hasher {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		params = DefaultParams
	}

	return &Hasher{params: params}
}

// NewSalt returns a random salt that is safe to embed in the stored hash.
func NewSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrHashing, err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (h *Hasher) Hash(password, salt string) (string, error) {
	const op = "lib.hasher.Hash"

	if len(salt) < MinSaltLength {
		return "", fmt.Errorf("%s: %w: salt must be at least %d bytes", op, errs.ErrHashing, MinSaltLength)
	}

	p := h.params
	key := argon2.IDKey([]byte(password), []byte(salt), p.Iterations, p.Memory, p.Parallelism, keyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString([]byte(salt)),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return salt + ":" + encoded, nil
}

// HashNew hashes with a freshly generated salt.
func (h *Hasher) HashNew(password string) (string, error) {
	salt, err := NewSalt()
	if err != nil {
		return "", err
	}

	return h.Hash(password, salt)
}

// Verify never fails loudly: a malformed stored hash is simply a mismatch.
func (h *Hasher) Verify(password, stored string) bool {
	i := strings.LastIndex(stored, ":")
	if i < 0 {
		return false
	}

	p, salt, key, ok := decode(stored[i+1:])
	if !ok || string(salt) != stored[:i] {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(got, key) == 1
}

func decode(encoded string) (Params, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, false
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Params{}, nil, nil, false
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return Params{}, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < MinSaltLength {
		return Params{}, nil, nil, false
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, false
	}

	return p, salt, key, true
}
