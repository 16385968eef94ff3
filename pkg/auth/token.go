// Package auth holds the shared-token helpers used by the gateway and the
// viewer client. The token is a single shared secret: the gateway requires
// it from every connecting peer and from the owner's HTTP calls.
package auth

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Equal compares a presented token against the expected one in constant
// time. An empty expected token disables the check.
func Equal(presented, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// ReadToken prompts for a token pasted on r and returns it trimmed.
func ReadToken(r io.Reader) (string, error) {
	fmt.Println("Paste the gateway auth token:")
	fmt.Print("> ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return "", errors.New("no input received")
	}

	token := strings.TrimSpace(scanner.Text())
	if token == "" {
		return "", errors.New("token cannot be empty")
	}
	return token, nil
}
