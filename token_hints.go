package session

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleHint extracts a role claim from a bearer token without verifying the
// signature. The server owns verification; this is a display hint used while
// the profile fetch is still in flight and never an authorization source. The
// route guard requires a fetched profile before it renders anything
// privileged.
func RoleHint(token string) (UserRole, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", false
	}

	if role, ok := claims["role"].(string); ok && role != "" {
		return role, true
	}

	if dat, ok := claims["dat"].(map[string]any); ok {
		if role, ok := dat["role"].(string); ok && role != "" {
			return role, true
		}
	}

	return "", false
}
