// Package hashutil computes the content digests the service stamps on every
// upload, adapted from internal/blob/utils.go's GetSHA256Hash/GetSHA256Sum.
package hashutil

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"
)

// SHA256Sum returns the raw SHA-256 sum of data.
func SHA256Sum(data []byte) []byte {
	h := sha256.New()
	h.Write(data)
	return h.Sum(nil)
}

// SHA256Hex returns the hex-encoded SHA-256 sum of data, the form stamped
// into upload metadata and returned in the X-SHA256 response header.
func SHA256Hex(data []byte) string {
	return hex.EncodeToString(SHA256Sum(data))
}
