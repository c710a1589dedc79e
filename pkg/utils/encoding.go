package utils

import (
	"encoding/base64"

	"github.com/mr-tron/base58"
)

// EncodeBase64 encodes bytes to base64 string
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes base64 string to bytes
func DecodeBase64(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// IsValidSolanaAddress checks if string is a valid Solana address
func IsValidSolanaAddress(address string) bool {
	decoded, err := base58.Decode(address)
	return err == nil && len(decoded) == 32
}

// IsValidSolanaPrivateKey checks if string is a valid base58 keypair
func IsValidSolanaPrivateKey(privkey string) bool {
	decoded, err := base58.Decode(privkey)
	return err == nil && len(decoded) == 64
}

// ShortAddress abbreviates an address for chat messages, e.g. "Abcd…wxyz"
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:4] + "…" + address[len(address)-4:]
}
