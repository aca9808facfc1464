package store

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const dummyPassword = "yapper-unknown-user"

// Passwords hashes and checks bcrypt passwords for the stores that hash
// locally. Checking an unknown user still costs one comparison, so response
// time does not tell registered emails apart from unknown ones.
type Passwords struct {
	cost  int
	dummy func() []byte

	// Compare is bcrypt.CompareHashAndPassword unless replaced.
	Compare func(hash, password []byte) error
}

func NewPasswords(cost int) *Passwords {
	p := &Passwords{cost: cost, Compare: bcrypt.CompareHashAndPassword}
	p.dummy = sync.OnceValue(func() []byte {
		h, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
		if err != nil {
			return nil
		}
		return h
	})
	return p
}

func (p *Passwords) Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), p.cost)
}

// Check reports whether password matches hash. A nil hash stands for an
// unknown user and is compared against a dummy hash of the same cost.
func (p *Passwords) Check(hash []byte, password string) bool {
	if hash == nil {
		_ = p.Compare(p.dummy(), []byte(password))
		return false
	}
	return p.Compare(hash, []byte(password)) == nil
}
