/*
Package fingerprint derives salted digests of source locations.

A fingerprint is stored next to produced files and later compared against
the current source location to decide whether a file changed. It is an
equality check, not a credential: the digest is keyed with a random salt
that travels inside the fingerprint itself.

New fingerprints look like

	$b2$<32 hex salt>$<64 hex blake2b-256 digest>

bcrypt values ($2a$, $2b$, $2y$) written by older deployments still verify.
*/
package fingerprint

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/blake2b"
)

const (
	prefix  = "$b2$"
	saltLen = 16
)

// ErrMalformed is returned when a stored fingerprint cannot be used as a salt
var ErrMalformed = errors.New("malformed fingerprint")

// PathOf returns the path component of a location URL, or the location
// itself when it carries no URL path
func PathOf(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Path == "" {
		return location
	}
	return u.Path
}

// New fingerprints the path of location under a fresh random salt
func New(location string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}
	return digest(PathOf(location), salt)
}

// Rehash fingerprints location reusing the salt carried by stored
func Rehash(location string, stored string) (string, error) {
	path := PathOf(location)
	if isBcrypt(stored) {
		// bcrypt has no salt-reuse API; a match reproduces stored exactly
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(path)) != nil {
			return "", nil
		}
		return stored, nil
	}

	salt, err := saltOf(stored)
	if err != nil {
		return "", err
	}
	return digest(path, salt)
}

// Verify reports whether stored is a fingerprint of location
func Verify(location string, stored string) bool {
	if location == "" || stored == "" {
		return false
	}
	fresh, err := Rehash(location, stored)
	if err != nil {
		return false
	}
	return fresh == stored
}

func digest(path string, salt []byte) (string, error) {
	h, err := blake2b.New256(salt)
	if err != nil {
		return "", err
	}
	h.Write([]byte(path))
	return prefix + hex.EncodeToString(salt) + "$" + hex.EncodeToString(h.Sum(nil)), nil
}

func saltOf(stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, prefix) {
		return nil, ErrMalformed
	}
	parts := strings.Split(strings.TrimPrefix(stored, prefix), "$")
	if len(parts) != 2 {
		return nil, ErrMalformed
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil || len(salt) != saltLen {
		return nil, ErrMalformed
	}
	return salt, nil
}

func isBcrypt(stored string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(stored, p) {
			return true
		}
	}
	return false
}
