// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

var errMalformedHash = errors.New("malformed password hash")

const saltLength = 16

// HashParams are the Argon2id cost parameters.
type HashParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// Hasher derives Argon2id hashes of peppered passwords and encodes them in
// PHC string format.
type Hasher struct {
	pepper []byte
	params HashParams
}

// NewHasher returns a hasher using the given pepper, which must be at most
// 64 bytes long.
func NewHasher(pepper []byte, params HashParams) (*Hasher, error) {
	if len(pepper) > blake2b.Size {
		return nil, fmt.Errorf("pepper must be at most %d bytes, got %d", blake2b.Size, len(pepper))
	}
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return nil, errors.New("argon2 parameters must be positive")
	}
	return &Hasher{pepper: pepper, params: params}, nil
}

func (h *Hasher) prehash(password string) []byte {
	mac, _ := blake2b.New256(h.pepper) // key length checked in NewHasher
	mac.Write([]byte(password))
	return mac.Sum(nil)
}

// Hash returns the encoded hash of password under a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey(h.prehash(password), salt, h.params.Time, h.params.Memory, h.params.Threads, 32)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify compares password against an encoded hash in constant time. The
// cost parameters are taken from the encoded hash.
func (h *Hasher) Verify(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, errMalformedHash
	}

	var p HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return false, errMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errMalformedHash
	}

	got := argon2.IDKey(h.prehash(password), salt, p.Time, p.Memory, p.Threads, uint32(len(want))) //nolint:gosec // length of a decoded 32 byte key
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// PasswordPolicy validates passwords against the enrollment rules
type PasswordPolicy struct {
	MinLength           int
	RequireDigit        bool
	RequireSpecial      bool
	CheckUserSimilarity bool
}

// DefaultPasswordPolicy returns the enrollment policy: eight characters with
// at least one digit and one special character.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:           8,
		RequireDigit:        true,
		RequireSpecial:      true,
		CheckUserSimilarity: true,
	}
}

// Validate returns the violated rule codes, or nil for an acceptable password.
func (p *PasswordPolicy) Validate(password string, userAttributes ...string) []string {
	var codes []string

	if len([]rune(password)) < p.MinLength {
		codes = append(codes, "password_min_length")
	}

	var hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if p.RequireDigit && !hasDigit {
		codes = append(codes, "password_no_digit")
	}
	if p.RequireSpecial && !hasSpecial {
		codes = append(codes, "password_no_special")
	}

	if p.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		codes = append(codes, "password_too_similar")
	}

	return codes
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)

	for _, attr := range attributes {
		if len(attr) < 3 {
			continue
		}
		attrLower := strings.ToLower(attr)

		if strings.Contains(passwordLower, attrLower) || strings.Contains(attrLower, passwordLower) {
			return true
		}
		if similarity(passwordLower, attrLower) > 0.7 {
			return true
		}
	}

	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	return float64(lcsLength(a, b)) / float64(max(len(a), len(b)))
}

// lcsLength returns the length of the longest common subsequence, keeping
// only two rows of the table.
func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
