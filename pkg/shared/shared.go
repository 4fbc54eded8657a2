package shared

import (
	"fmt"
	"os"
	"strings"
)

// Credentials holds a username/password pair for basic-auth collaborators.
type Credentials struct {
	User     string
	Password string
}

// IsSet reports whether both halves of the pair are present.
func (c Credentials) IsSet() bool {
	return c.User != "" && c.Password != ""
}

// CredentialsFromFile reads a "user:password" pair from a single-line file.
func CredentialsFromFile(path string) (Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading credentials file: %w", err)
	}
	line := strings.TrimSpace(string(raw))
	user, pass, found := strings.Cut(line, ":")
	if !found {
		return Credentials{}, fmt.Errorf("credentials file %s: expected user:password", path)
	}
	return Credentials{User: user, Password: pass}, nil
}
