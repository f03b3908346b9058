package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// CodeLength is the number of digits in a one-time code.
const CodeLength = 6

// codeFloor/codeSpan give codes in [100000, 999999]: always six digits, so a
// code never loses a leading zero in a form field or an email client.
var (
	codeFloor = big.NewInt(100000)
	codeSpan  = big.NewInt(900000)
)

// GenerateCode returns a uniformly random six-digit code from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("auth: generating code: %w", err)
	}
	return n.Add(n, codeFloor).String(), nil
}

// defaultCost is the bcrypt work factor for stored codes.
//
// A code lives for five minutes and has only 900,000 possible values, so the
// hash does not make brute force impossible. It keeps a leaked credentials
// table from handing out live codes directly.
const defaultCost = 10

// CodeHasher hashes one-time codes before they are stored and checks
// submitted codes against the stored hash.
//
// It's a struct so the bcrypt cost can be lowered in tests.
type CodeHasher struct {
	cost int
}

// NewCodeHasher creates a CodeHasher with the default cost.
func NewCodeHasher() *CodeHasher {
	return &CodeHasher{cost: defaultCost}
}

// NewCodeHasherForTest creates a CodeHasher with the given cost. Use
// bcrypt.MinCost (4) in tests. Do NOT use in production.
func NewCodeHasherForTest(cost int) *CodeHasher {
	return &CodeHasher{cost: cost}
}

// Hash returns the bcrypt hash of code.
func (h *CodeHasher) Hash(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing code: %w", err)
	}
	return string(hashed), nil
}

// ErrCodeMismatch is returned by Match when the code is wrong.
var ErrCodeMismatch = errors.New("auth: code does not match")

// Match reports whether code matches hash. The comparison is constant-time.
func (h *CodeHasher) Match(hash, code string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("auth: comparing code hash: %w", err)
	}
	return nil
}
