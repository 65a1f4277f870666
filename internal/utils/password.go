package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	PasswordLength = 12
)

var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters long", PasswordLength)

func HashPassword(password string) (string, error) {
	return hashPassword(password, BcryptCost)
}

func hashPassword(password string, cost int) (string, error) {
	if len(password) < PasswordLength {
		return "", ErrPasswordTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}
