// Package challenge generates the one-time tokens a handle owner must
// publish to prove control of their account.
package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Prefix makes issued tokens recognizable when they appear in a public post.
const Prefix = "bluecheck-"

// New generates a fresh verification token of the form "bluecheck-<8 hex>".
// Tokens are drawn from crypto/rand and are not predictable across calls.
func New() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return Prefix + hex.EncodeToString(b), nil
}

// Instruction returns the message telling the handle owner what to publish
// for the given token.
func Instruction(token string) string {
	return "Please tweet the following verification code: " + token
}
