package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrNoBearerToken = errors.New("authorization header is missing")

// ExtractTokenFromRequest extracts a bearer token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoBearerToken
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}
