// Package crypto provides the hashing and randomness helpers behind
// activation key generation and admin token checks.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// seedSize is the number of random bytes mixed into every group.
const seedSize = 16

// groupSeq makes seeds distinct even when the clock does not advance.
var groupSeq atomic.Uint64

// GenerateKeyGroup returns the first n characters of an uppercase hex MD5
// digest over a sequence number, the current time and fresh random bytes.
// n must be between 1 and 32.
func GenerateKeyGroup(n int) (string, error) {
	if n < 1 || n > 32 {
		return "", fmt.Errorf("invalid group length %d", n)
	}

	seed := make([]byte, 16+seedSize)
	binary.BigEndian.PutUint64(seed[0:8], groupSeq.Add(1))
	binary.BigEndian.PutUint64(seed[8:16], uint64(time.Now().UnixNano()))
	if _, err := rand.Read(seed[16:]); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return strings.ToUpper(ComputeMD5(seed)[:n]), nil
}

// GenerateKeyGroups returns count independent groups of length n.
func GenerateKeyGroups(count, n int) ([]string, error) {
	groups := make([]string, count)
	for i := range groups {
		g, err := GenerateKeyGroup(n)
		if err != nil {
			return nil, err
		}
		groups[i] = g
	}
	return groups, nil
}

// ConstantTimeEqual reports whether a and b are equal without leaking
// the position of the first difference. Inputs are hashed first so the
// comparison time does not depend on their lengths either.
func ConstantTimeEqual(a, b string) bool {
	ha := ComputeSHA256Bytes([]byte(a))
	hb := ComputeSHA256Bytes([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
