// Package cache holds the key-derivation helper shared by the memory and
// persistent cache tiers (spec §3, "Cache entry").
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/wxyc/library-lookup/internal/normalize"
)

// Key computes a stable 128-bit digest over (operation, canonicalized
// argument tuple), matching spec §3's "Key derivation" note. Arguments are
// normalized via internal/normalize so that cosmetic differences (case,
// diacritics, whitespace) collapse onto the same cache entry.
func Key(operation string, args ...string) string {
	canon := make([]string, len(args))
	for i, a := range args {
		canon[i] = normalize.Normalize(a)
	}
	joined := operation + "\x00" + strings.Join(canon, "\x00")
	sum := md5.Sum([]byte(joined))
	return hex.EncodeToString(sum[:])
}
