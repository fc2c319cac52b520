package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when BCRYPT_COST is not set.
//
// COST TUNING RULE OF THUMB:
// Set cost so that hashing takes ~200–300ms on production hardware (12 on a
// current server). Each +1 doubles the time. Tests use bcrypt.MinCost (4).
const DefaultBcryptCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer inputs would be silently
// truncated by the algorithm, so they are rejected instead.
const MaxPasswordBytes = 72

var (
	ErrPasswordMismatch = errors.New("auth: password does not match")
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
)

// PasswordService hashes and verifies credential passwords with bcrypt.
//
// bcrypt embeds a random salt and the cost in its output, e.g.
//
//	$2a$12$<22-char salt><31-char hash>
//
// so the whole string goes into the users.password column and nothing else
// needs to be stored. The original password is never kept anywhere.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a service hashing at the given cost.
// A cost outside bcrypt's accepted range falls back to DefaultBcryptCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks plaintext against a stored hash. It returns
// ErrPasswordMismatch for a wrong password and a wrapped error when the hash
// itself is unusable.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword compares in constant time, so response time
// does not leak how much of a guess was right.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
