package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrPasswordMismatch reports that the password does not match the stored
// hash. Login folds this into the same failure as an unknown account.
var ErrPasswordMismatch = errors.New("password does not match")

// hashParams carries the argon2id cost parameters recorded in a stored hash,
// so old rows keep verifying after the defaults change.
type hashParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

// HashPassword derives an argon2id key from the password plus the process
// pepper and encodes it as a PHC string for storage on the user row.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password+GetPepper()), salt,
		iterations, memory, parallelism, keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword re-derives the key under the parameters recorded in the
// stored hash and compares in constant time. A wrong password returns
// ErrPasswordMismatch; any other error means the stored hash is malformed.
func VerifyPassword(password, encodedHash string) error {
	params, salt, want, err := decodeHash(encodedHash)
	if err != nil {
		return err
	}

	got := argon2.IDKey([]byte(password+GetPepper()), salt,
		params.iterations, params.memory, params.parallelism,
		uint32(len(want)), // #nosec G115 - bounded by the decoded digest length
	)

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// decodeHash splits a "$argon2id$v=19$m=..,t=..,p=..$salt$digest" string.
func decodeHash(encoded string) (hashParams, []byte, []byte, error) {
	var p hashParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, errors.New("malformed password hash")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unsupported hash algorithm %q", parts[1])
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return p, nil, nil, errors.New("unsupported argon2 version")
	}

	for _, field := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return p, nil, nil, errors.New("malformed hash parameters")
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return p, nil, nil, errors.New("malformed hash parameters")
		}
		switch name {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.iterations = uint32(n)
		case "p":
			if n > 255 {
				return p, nil, nil, errors.New("malformed hash parameters")
			}
			p.parallelism = uint8(n)
		default:
			return p, nil, nil, fmt.Errorf("unknown hash parameter %q", name)
		}
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return p, nil, nil, errors.New("malformed hash parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errors.New("malformed hash salt")
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, errors.New("malformed hash digest")
	}

	return p, salt, digest, nil
}
