package hilink

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// The firmware's own entity table, not standard XML escaping: slash and both
// parentheses are escaped too.
var fieldEscaper = strings.NewReplacer(
	"&", "&amp;",
	"'", "&apos;",
	`"`, "&quot;",
	"<", "&lt;",
	">", "&gt;",
	"/", "&#47;",
	"(", "&#40;",
	")", "&#41;",
)

func escapeFieldValue(plaintext string) string {
	return fieldEscaper.Replace(plaintext)
}

// EncryptField produces the hex ciphertext the device expects for a sensitive
// settings field: entity-escape, base64, OAEP-SHA1 pad to the full 256-byte
// key width, raw RSA against the published modulus/exponent, hex left-padded
// to 512 characters. The output length is always exactly 512.
func EncryptField(plaintext, modulusHex, exponentHex string) (string, error) {
	if modulusHex == "" {
		return "", &PublicKeyError{err: fmt.Errorf("no modulus to encrypt against")}
	}
	if exponentHex == "" {
		exponentHex = "010001"
	}
	message := []byte(base64.StdEncoding.EncodeToString([]byte(escapeFieldValue(plaintext))))
	block, err := oaepPad(message, rsaKeyBytes)
	if err != nil {
		return "", fmt.Errorf("could not pad field for encryption: %w", err)
	}
	ciphertext, err := rsaEncryptRaw(block, modulusHex, exponentHex)
	if err != nil {
		return "", &PublicKeyError{err: err}
	}
	return ciphertext, nil
}

// devicePublicKey is the RSA key pair half the device publishes for field
// encryption.
type devicePublicKey struct {
	modulusHex  string
	exponentHex string
}

// FetchPublicKey retrieves and parses the device's field-encryption key.
// Failure is surfaced as PublicKeyError rather than silently downgrading to
// plaintext.
func (c *Client) FetchPublicKey() (*devicePublicKey, error) {
	body, err := c.Get(endpointPublicKey)
	if err != nil {
		return nil, &PublicKeyError{err: err}
	}
	modulus, err := xmlTagText([]byte(body), "encpubkeyn")
	if err != nil || modulus == "" {
		return nil, &PublicKeyError{err: fmt.Errorf("response carries no encpubkeyn")}
	}
	exponent, err := xmlTagText([]byte(body), "encpubkeye")
	if err != nil || exponent == "" {
		exponent = "010001"
	}
	return &devicePublicKey{modulusHex: modulus, exponentHex: exponent}, nil
}
