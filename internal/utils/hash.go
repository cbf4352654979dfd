package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// CalculateDataSHA256 returns the hex encoded SHA-256 digest of data
func CalculateDataSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
