package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSHA256Bytes computes the raw SHA-256 digest of a byte slice.
func ComputeSHA256Bytes(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}

// ComputeMD5 computes the hex-encoded MD5 hash of a byte slice.
func ComputeMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}
