// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// ChunkID generates a deterministic chunk ID from repository, path and
// the chunk's sequential index within the file.
func ChunkID(repo, path string, index int) string {
	data := []byte(repo + ":" + path + ":" + strconv.Itoa(index))
	return SHA256Short(data, 16)
}

// ContentKey returns a namespaced key for caching values derived from text.
func ContentKey(namespace, text string) string {
	return namespace + ":" + SHA256String(text)
}
