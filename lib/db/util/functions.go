package util

import "strings"

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// IsReservedKey reports whether key belongs to the reserved key space ("[[...]]").
// Reserved keys can not be written by clients.
func IsReservedKey(key string) bool {
	return strings.HasPrefix(key, "[[") && strings.HasSuffix(key, "]]")
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is a key type based on uint64 for hash representation
type UintKey uint64

// HashString generates a hash value for a string with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed

	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}
