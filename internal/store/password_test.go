package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswords(t *testing.T) {
	p := NewPasswords(bcrypt.MinCost)
	hash, err := p.Hash("secret1")
	require.NoError(t, err)

	assert.True(t, p.Check(hash, "secret1"))
	assert.False(t, p.Check(hash, "secret2"))
}

func TestPasswordsUnknownUserUsesDummyHash(t *testing.T) {
	p := NewPasswords(bcrypt.MinCost)
	var seen []byte
	p.Compare = func(hash, password []byte) error {
		seen = hash
		return bcrypt.CompareHashAndPassword(hash, password)
	}

	assert.False(t, p.Check(nil, dummyPassword))
	require.NotNil(t, seen)
	cost, err := bcrypt.Cost(seen)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
