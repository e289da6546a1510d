package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials holds the single admin login. The plaintext password from
// config is hashed once at startup and discarded.
type Credentials struct {
	username string
	hash     []byte
}

func NewCredentials(username, password string) (*Credentials, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, fmt.Errorf("admin username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Credentials{username: username, hash: hash}, nil
}

// Verify reports whether the supplied login matches.
func (c *Credentials) Verify(username, password string) bool {
	if c == nil {
		return false
	}
	usernameMatch := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(c.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(c.hash, []byte(strings.TrimSpace(password))) == nil
	return usernameMatch && passwordMatch
}

// Username returns the configured admin username.
func (c *Credentials) Username() string { return c.username }
