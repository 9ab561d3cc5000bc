package uploader

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// tokenHeader is the JOSE header of every upload token
const tokenHeader = `{"alg":"HS256","typ":"JWT"}`

// SignURL returns a compact HS256 JWS whose payload is the URL itself rather
// than a claims object. The same url and secret always yield the same token.
func SignURL(url, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("upload secret is empty")
	}

	signingString := segment([]byte(tokenHeader)) + "." + segment([]byte(url))

	sig, err := jwt.SigningMethodHS256.Sign(signingString, []byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign upload url: %w", err)
	}

	return signingString + "." + segment(sig), nil
}

// VerifyURL checks that token was produced by SignURL for url and secret
func VerifyURL(token, url, secret string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return jwt.ErrTokenMalformed
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%w: %v", jwt.ErrTokenMalformed, err)
	}
	if string(payload) != url {
		return fmt.Errorf("token was issued for %q", payload)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: %v", jwt.ErrTokenMalformed, err)
	}

	return jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, []byte(secret))
}

func segment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
