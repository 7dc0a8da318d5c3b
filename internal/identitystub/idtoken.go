package identitystub

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type idTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// emailFromIDToken extracts the email claim without verifying the signature.
func emailFromIDToken(idToken string) (string, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return "", fmt.Errorf("failed to parse id token: %w", err)
	}
	if claims.Email == "" {
		return "", fmt.Errorf("id token has no email claim")
	}
	return claims.Email, nil
}
