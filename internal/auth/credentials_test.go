package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsVerify(t *testing.T) {
	creds, err := NewCredentials("admin", "correct horse battery staple")
	assert.NoError(t, err)
	assert.Equal(t, "admin", creds.Username())

	assert.True(t, creds.Verify("admin", "correct horse battery staple"))
	assert.False(t, creds.Verify("admin", "wrong password"))
	assert.False(t, creds.Verify("someone", "correct horse battery staple"))
	assert.False(t, creds.Verify("", ""))
}

func TestNewCredentialsValidation(t *testing.T) {
	_, err := NewCredentials("", "password")
	assert.Error(t, err)

	_, err = NewCredentials("admin", "")
	assert.Error(t, err)
}
