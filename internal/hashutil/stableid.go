package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// StableIDLen is the fixed width (in hex characters) of a derived stable
// pattern identifier.
const StableIDLen = 16

// StablePatternID derives the stable identifier for a pattern purely from
// its (category, subcategory, detector id, detector-local pattern id)
// tuple, using a cryptographic digest (stronger than the xxhash used for
// content-identity hashing) so the same logical pattern resolves to the
// same id across processes and machines regardless of where it was found.
func StablePatternID(category, subcategory, detectorID, localPatternID string) string {
	key := strings.Join([]string{category, subcategory, detectorID, localPatternID}, "\x1f")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:StableIDLen]
}
