package auth

import (
	"golang.org/x/crypto/bcrypt"

	"ipamd/internal/domain"
)

// HashPassword hashes with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a candidate against a stored bcrypt hash. The error
// is uniform so callers cannot distinguish a wrong password from a missing
// user.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return domain.Errorf(domain.ErrUnauthenticated, "用户名或密码错误")
	}
	return nil
}
