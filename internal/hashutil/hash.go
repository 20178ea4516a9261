// Package hashutil computes the short content-hash prefixes used throughout
// the data model: file descriptors, manifest per-file records, and the
// aggregate codebase hash. Uses cespare/xxhash for cheap content-identity
// checks rather than a cryptographic digest.
package hashutil

import (
	"encoding/hex"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ShortHashLen is the number of hex characters kept from the full digest.
const ShortHashLen = 16

// Short returns the first ShortHashLen hex characters of the xxhash digest
// of content.
func Short(content []byte) string {
	sum := xxhash.Sum64(content)
	return hex.EncodeToString(encodeUint64(sum))[:ShortHashLen]
}

// ShortFile streams a file through xxhash without holding its full content
// in memory, so hashing a large file costs one read pass rather than a
// full buffer plus a copy.
func ShortFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(encodeUint64(h.Sum64()))[:ShortHashLen], nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// Codebase derives the manifest's aggregate codebase hash: sort all
// per-file short hashes, concatenate, and digest the result, so the
// aggregate is independent of the order files were scanned in.
func Codebase(fileHashes []string) string {
	sorted := make([]string, len(fileHashes))
	copy(sorted, fileHashes)
	sort.Strings(sorted)
	return Short([]byte(strings.Join(sorted, "")))
}
