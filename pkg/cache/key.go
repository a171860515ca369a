package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key identifies a cached page artifact.
type Key struct {
	// Document is the logical document name the page belongs to.
	Document string

	// Page is the zero-based page index within the document.
	Page int

	// Checksum fingerprints the page payload. Two payloads with different
	// bytes never share an artifact.
	Checksum string
}

// NewKey builds a key for a page payload, computing the payload checksum.
func NewKey(document string, page int, payload []byte) Key {
	sum := sha256.Sum256(payload)
	return Key{
		Document: document,
		Page:     page,
		Checksum: hex.EncodeToString(sum[:8]),
	}
}

// String generates a deterministic cache key string.
// Format: pagedoc:document:page=N:sum=abcdef0123456789
//
// Example:
//
//	pagedoc:annual-report.pdf:page=3:sum=9f86d081884c7d65
func (k Key) String() string {
	doc := strings.ReplaceAll(strings.TrimSpace(k.Document), ":", "_")
	return fmt.Sprintf("pagedoc:%s:page=%d:sum=%s", doc, k.Page, k.Checksum)
}
