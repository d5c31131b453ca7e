// Package fingerprint derives stable dedup keys for ingested tips.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"curator/internal/types"
)

// KeyLength is the number of hex characters kept from the digest.
// 12 chars (48 bits) keeps keys short enough for CLI display while the
// collision space stays far beyond any realistic queue size.
const KeyLength = 12

// Fingerprint canonicalizes a tip's source identity into a dedup key.
// It is a pure function of the source platform and the source-native id,
// never of the text content: upstream edits to a post must not make the
// same item look new.
func Fingerprint(source types.Source, nativeID string) string {
	canonical := string(source) + ":" + strings.TrimSpace(nativeID)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:KeyLength]
}

// TipKey is a convenience wrapper for a populated tip.
func TipKey(t *types.Tip) string {
	return Fingerprint(t.Source, t.NativeID)
}
