// Package auth provides password hashing and cookie session tokens.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 characters")
	ErrWrongPassword    = errors.New("wrong username or password")
)

// HashPassword hashes a plaintext password with bcrypt.
// The 72 byte cap is bcrypt's own input limit.
func HashPassword(plain string) (string, error) {
	if len(plain) < 8 {
		return "", ErrPasswordTooShort
	}
	if len(plain) > 72 {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash against a plaintext candidate.
// Returns ErrWrongPassword on mismatch so callers never leak which of
// username or password was wrong.
func CheckPassword(hash, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrWrongPassword
	}
	return nil
}
