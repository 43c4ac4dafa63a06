// Package security holds the password digest and credential validation
// helpers shared by client and server. The digest is a placeholder scheme:
// the server compares digests by strict equality and never sees plaintext,
// but nothing here constitutes hardened authentication.
package security

import (
	"encoding/hex"
	"errors"
	"unicode"

	"golang.org/x/crypto/sha3"
)

const (
	// HashLength is the length of a password digest in hex characters
	// (256-bit digest). The server rejects create-user requests whose
	// digest field is any other length.
	HashLength = 64

	// MinUsernameLength is the exclusive lower bound on account name
	// length; names must be strictly longer.
	MinUsernameLength = 4

	// MinPasswordLength is the inclusive lower bound on password length.
	MinPasswordLength = 6
)

var (
	ErrUsernameTooShort   = errors.New("user name must be longer than 4 characters")
	ErrUsernameFormat     = errors.New("user name must be alphanumeric")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrPasswordComplexity = errors.New("password needs an upper case, lower case, digit and special character")
)

// HashPassword digests a plaintext password to a 64-character hex string.
func HashPassword(plaintext string) string {
	sum := sha3.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidateUsername checks the account-name rules: strictly longer than
// MinUsernameLength and alphanumeric throughout.
func ValidateUsername(name string) error {
	runes := []rune(name)
	if len(runes) <= MinUsernameLength {
		return ErrUsernameTooShort
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ErrUsernameFormat
		}
	}
	return nil
}

// ValidatePassword checks length and complexity: at least one lower case,
// upper case, digit and special character.
func ValidatePassword(password string) error {
	runes := []rune(password)
	if len(runes) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	var lower, upper, digit, special bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return ErrPasswordComplexity
	}
	return nil
}

// Credentials validates a name/password pair and returns the name with the
// password digested, ready to put on the wire.
func Credentials(name, password string) (string, string, error) {
	if err := ValidateUsername(name); err != nil {
		return "", "", err
	}
	if err := ValidatePassword(password); err != nil {
		return "", "", err
	}
	return name, HashPassword(password), nil
}
