// Package secrets produces credential values for generated-secret
// resources. Values are either drawn from crypto/rand on first creation or
// derived deterministically from a seed, and in both cases stay stable for
// the lifetime of the owning resource because the stored value is reused on
// every subsequent run.
package secrets

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numericChars = "0123456789"
	specialChars = "!@#$%&*()-_=+[]{}<>:?"
)

// DefaultLength is used when a policy does not specify one.
const DefaultLength = 32

// Policy describes the length and character classes of a generated value.
type Policy struct {
	Length  int
	Upper   bool
	Lower   bool
	Numeric bool
	Special bool

	// OverrideSpecial replaces the default special character set, for
	// services that reject certain punctuation.
	OverrideSpecial string
}

// DefaultPolicy generates 32-character alphanumeric values.
func DefaultPolicy() Policy {
	return Policy{Length: DefaultLength, Upper: true, Lower: true, Numeric: true}
}

func (p Policy) charset() (string, error) {
	var cs string
	if p.Lower {
		cs += lowerChars
	}
	if p.Upper {
		cs += upperChars
	}
	if p.Numeric {
		cs += numericChars
	}
	if p.Special {
		if p.OverrideSpecial != "" {
			cs += p.OverrideSpecial
		} else {
			cs += specialChars
		}
	}
	if cs == "" {
		return "", fmt.Errorf("secret policy selects no character classes")
	}

	// Duplicate bytes (an override repeating a default class) would skew
	// sampling toward them and can push the set past the 256 values a
	// single sampled byte covers; only the first occurrence is kept.
	var seen [256]bool
	dedup := make([]byte, 0, len(cs))
	for i := 0; i < len(cs); i++ {
		if !seen[cs[i]] {
			seen[cs[i]] = true
			dedup = append(dedup, cs[i])
		}
	}
	return string(dedup), nil
}

func (p Policy) length() int {
	if p.Length > 0 {
		return p.Length
	}
	return DefaultLength
}

// Generate draws a fresh random value satisfying the policy.
func Generate(p Policy) (string, error) {
	cs, err := p.charset()
	if err != nil {
		return "", err
	}

	out := make([]byte, p.length())
	max := big.NewInt(int64(len(cs)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading randomness: %w", err)
		}
		out[i] = cs[n.Int64()]
	}
	return string(out), nil
}

// Derive computes a deterministic value from a seed and a resource
// identity. The same (seed, identity, policy) always yields the same value,
// so re-applying an unchanged declaration never rotates the secret.
func Derive(seed, identity string, p Policy) (string, error) {
	cs, err := p.charset()
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, p.length())
	// Rejection sampling over an HMAC-SHA256 stream keyed by the seed,
	// keeping the distribution uniform over the charset.
	limit := 256 - 256%len(cs)
	for block := uint64(0); len(out) < p.length(); block++ {
		mac := hmac.New(sha256.New, []byte(seed))
		mac.Write([]byte(identity))
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], block)
		mac.Write(ctr[:])
		for _, b := range mac.Sum(nil) {
			if int(b) >= limit {
				continue
			}
			out = append(out, cs[int(b)%len(cs)])
			if len(out) == p.length() {
				break
			}
		}
	}
	return string(out), nil
}
