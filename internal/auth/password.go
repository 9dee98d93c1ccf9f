package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrPasswordMismatch is returned when a password does not match the stored hash.
var ErrPasswordMismatch = errors.New("password does not match")

// argonParams are the Argon2id cost settings. memory is in KiB.
type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// DefaultParams is used for every new hash. Existing hashes carry their own
// parameters, so raising these does not invalidate them.
var DefaultParams = &argonParams{
	memory:      64 * 1024,
	iterations:  3,
	parallelism: 2,
	saltLength:  16,
	keyLength:   32,
}

// HashPassword returns the staff password in the standard encoded form
// $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>,
// which is what STAFF_PASSWORD_HASH expects.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	p := DefaultParams

	salt := make([]byte, p.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.iterations, p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// ComparePassword checks password against an encoded hash. A malformed hash
// is reported as an error distinct from ErrPasswordMismatch.
func ComparePassword(password, encoded string) error {
	p, salt, hash, err := decodeHash(encoded)
	if err != nil {
		return err
	}
	other := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLength)
	// Constant time, so response timing says nothing about the hash.
	if subtle.ConstantTimeCompare(hash, other) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// ValidateHash reports whether encoded can be used by ComparePassword.
func ValidateHash(encoded string) error {
	_, _, _, err := decodeHash(encoded)
	return err
}

func decodeHash(encoded string) (p *argonParams, salt, hash []byte, err error) {
	vals := strings.Split(encoded, "$")
	if len(vals) != 6 {
		return nil, nil, nil, errors.New("invalid password hash format")
	}
	if vals[1] != "argon2id" {
		return nil, nil, nil, fmt.Errorf("unsupported hashing algorithm %q", vals[1])
	}

	var version int
	if _, err := fmt.Sscanf(vals[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid hash version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("incompatible argon2 version %d", version)
	}

	p = &argonParams{}
	if _, err := fmt.Sscanf(vals[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid hash parameters: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(vals[4]); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid hash salt: %w", err)
	}
	p.saltLength = uint32(len(salt))

	if hash, err = base64.RawStdEncoding.DecodeString(vals[5]); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid hash value: %w", err)
	}
	p.keyLength = uint32(len(hash))

	return p, salt, hash, nil
}
