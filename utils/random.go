package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateCode returns an uppercase hex string built from n random bytes.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NewQRCode returns a globally unique, unguessable ticket redemption code.
// 20 random bytes keep the code impossible to derive from order id and
// ticket index.
func NewQRCode() (string, error) {
	code, err := GenerateCode(20)
	if err != nil {
		return "", fmt.Errorf("utils: generate qr code: %w", err)
	}
	return "TKT-" + code, nil
}

// NewIdempotencyKey returns a client-generated key for provider calls so a
// retried create-intent request is never applied twice.
func NewIdempotencyKey() (string, error) {
	code, err := GenerateCode(16)
	if err != nil {
		return "", fmt.Errorf("utils: generate idempotency key: %w", err)
	}
	return "idem_" + strings.ToLower(code), nil
}
