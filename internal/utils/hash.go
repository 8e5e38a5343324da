package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor used for every stored password.
const BcryptCost = 10

var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword returns a salted bcrypt hash of password.
// bcrypt rejects inputs longer than 72 bytes with bcrypt.ErrPasswordTooLong.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks password against a stored hash. A mismatch is
// reported as (false, nil); only malformed hashes return an error.
func VerifyPassword(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
