// Package password hashes and verifies credentials with argon2id. The auth
// service treats it as an opaque primitive: hash on account creation,
// compare at login.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	timeCost = 2
	memory   = 64 * 1024
	threads  = 1
	keyLen   = 32
	saltLen  = 16
)

// ErrInvalidHash reports a stored hash that does not parse as argon2id.
var ErrInvalidHash = errors.New("invalid password hash")

// Hash derives an argon2id hash and encodes it with its parameters and salt
// in the standard PHC string format.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, timeCost, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether the password matches the encoded hash. The stored
// parameters are honored so hashes survive cost changes.
func Verify(password, encoded string) (bool, error) {
	var (
		version             int
		mem, iter, parallel uint32
		saltB64, keyB64     string
	)
	n, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		&version, &mem, &iter, &parallel, &saltB64)
	if err != nil || n != 5 || version != argon2.Version {
		return false, ErrInvalidHash
	}
	// The final %s of Sscanf swallows the rest of the string; split the two
	// base64 segments apart.
	for i := 0; i < len(saltB64); i++ {
		if saltB64[i] == '$' {
			keyB64 = saltB64[i+1:]
			saltB64 = saltB64[:i]
			break
		}
	}
	if keyB64 == "" || parallel == 0 || parallel > 255 {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(keyB64)
	if err != nil {
		return false, ErrInvalidHash
	}

	actual := argon2.IDKey([]byte(password), salt, iter, mem, uint8(parallel), uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}
