package security

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a preview server password for the users section of
// the config.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// unknownUserHash is compared against when a user name is not configured,
// so unknown and known names cost the same bcrypt work.
var unknownUserHash = sync.OnceValue(func() string {
	h, err := HashPassword("unknown user")
	if err != nil {
		panic(err)
	}
	return h
})

// CheckUser reports whether name is in users and pw matches its hash.
func CheckUser(users map[string]string, name, pw string) bool {
	hash, known := users[name]
	if !known {
		hash = unknownUserHash()
	}
	return CheckPassword(hash, pw) && known
}
