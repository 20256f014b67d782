package auth

import "crypto/subtle"

// AdminUsername is the only account accepted by the admin API.
const AdminUsername = "admin"

// BasicAuth checks HTTP basic credentials against a single stored hash.
type BasicAuth struct {
	username string
	hash     string
}

// NewBasicAuth validates hash and returns a checker for username.
func NewBasicAuth(username, hash string) (*BasicAuth, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	return &BasicAuth{username: username, hash: hash}, nil
}

// Check reports whether username and password match.
func (b *BasicAuth) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(b.username)) == 1

	// Always run the hash so a wrong username costs the same.
	passOK, err := VerifyPassword(password, b.hash)
	return userOK && passOK && err == nil
}
