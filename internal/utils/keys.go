package utils

import (
	"crypto/rand"
	"encoding/hex"
)

const keySize = 32

// GenerateRandomKey returns 32 bytes from the system CSPRNG.
func GenerateRandomKey() []byte {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return key
}

// GenerateSecret returns a random key in hex, suitable for webhook secrets.
func GenerateSecret() string {
	return hex.EncodeToString(GenerateRandomKey())
}
