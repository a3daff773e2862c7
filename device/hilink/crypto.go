package hilink

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

func sha256Hex(data string) string {
	digest := sha256.Sum256([]byte(data))
	return hex.EncodeToString(digest[:])
}

// legacyPasswordHash derives the one-shot password hash for the legacy login
// envelope: base64(sha256hex(user + base64(sha256hex(pass)) + token)). Both
// SHA-256 digests travel as their ASCII hex form, not raw bytes.
func legacyPasswordHash(username, password, token string) string {
	inner := base64.StdEncoding.EncodeToString([]byte(sha256Hex(password)))
	outer := sha256Hex(username + inner + token)
	return base64.StdEncoding.EncodeToString([]byte(outer))
}

// newClientNonce returns 32 random bytes as 64 hex characters, built from two
// random UUIDs.
func newClientNonce() (string, error) {
	var nonce strings.Builder
	for i := 0; i < 2; i++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		raw, err := id.MarshalBinary()
		if err != nil {
			return "", err
		}
		nonce.WriteString(hex.EncodeToString(raw))
	}
	return nonce.String(), nil
}

func hmacSha256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// scramClientProof derives the challenge-response proof. Pure function of its
// inputs: given a fixed client nonce the result is bit-for-bit reproducible.
func scramClientProof(password, clientNonce, serverNonce, saltHex string, iterations int) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("could not decode challenge salt as hex: %w", err)
	}
	if iterations <= 0 {
		return "", errors.New("challenge iteration count must be positive")
	}
	passwordDigest := sha256.Sum256([]byte(password))
	saltedPassword := pbkdf2.Key(passwordDigest[:], salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSha256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	authMessage := clientNonce + "," + serverNonce + "," + serverNonce
	clientSignature := hmacSha256(storedKey[:], []byte(authMessage))
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}
	return hex.EncodeToString(proof), nil
}

// RSA-OAEP parameters fixed by the firmware: 2048-bit key, SHA-1, empty label.
const rsaKeyBytes = 256
const oaepHashLen = sha1.Size

// mgf1 is the PKCS#1 v2.1 mask generation function over SHA-1.
func mgf1(seed []byte, length int) []byte {
	mask := make([]byte, 0, length+oaepHashLen)
	for counter := uint32(0); len(mask) < length; counter++ {
		h := sha1.New()
		h.Write(seed)
		h.Write([]byte{byte(counter >> 24), byte(counter >> 16), byte(counter >> 8), byte(counter)})
		mask = h.Sum(mask)
	}
	return mask[:length]
}

// oaepPad builds the 256-byte encryption block 0x00 || maskedSeed || maskedDB
// around the message.
func oaepPad(message []byte, keyBytes int) ([]byte, error) {
	dbLen := keyBytes - oaepHashLen - 1
	maxMessage := dbLen - oaepHashLen - 1
	if len(message) > maxMessage {
		return nil, fmt.Errorf("message of %d bytes exceeds the %d byte OAEP capacity", len(message), maxMessage)
	}

	lHash := sha1.Sum(nil) // empty label
	db := make([]byte, dbLen)
	copy(db, lHash[:])
	db[dbLen-len(message)-1] = 0x01
	copy(db[dbLen-len(message):], message)

	seed := make([]byte, oaepHashLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	dbMask := mgf1(seed, dbLen)
	for i := range db {
		db[i] ^= dbMask[i]
	}
	seedMask := mgf1(db, oaepHashLen)
	for i := range seed {
		seed[i] ^= seedMask[i]
	}

	block := make([]byte, keyBytes)
	copy(block[1:], seed)
	copy(block[1+oaepHashLen:], db)
	return block, nil
}

// rsaEncryptRaw computes block^e mod n against the device's published
// modulus/exponent pair and returns the ciphertext hex, left-padded to the
// full key width.
func rsaEncryptRaw(block []byte, modulusHex, exponentHex string) (string, error) {
	modulus, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok || modulus.Sign() <= 0 {
		return "", errors.New("modulus is not valid hex")
	}
	exponent, ok := new(big.Int).SetString(exponentHex, 16)
	if !ok || exponent.Sign() <= 0 {
		return "", errors.New("exponent is not valid hex")
	}
	message := new(big.Int).SetBytes(block)
	if message.Cmp(modulus) >= 0 {
		return "", errors.New("padded block does not fit under the modulus")
	}
	ciphertext := new(big.Int).Exp(message, exponent, modulus)
	return leftPadHex(ciphertext.Text(16), 2*rsaKeyBytes), nil
}

func leftPadHex(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
