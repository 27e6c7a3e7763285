package stub

import "golang.org/x/crypto/bcrypt"

// HashSecret hashes a password or PIN with the configured cost.
func HashSecret(secret string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareSecret verifies a password or PIN against its hashed value.
func CompareSecret(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
