package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key joins parts with ':' into a namespaced key such as "session:fyers".
func Key(parts ...interface{}) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// Fingerprint reduces free-form input, like a search string, to a fixed
// width key part.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// PrefixPattern matches every key under prefix, in Redis glob syntax.
func PrefixPattern(prefix string) string {
	return prefix + "*"
}

// matchPattern understands the trailing '*' produced by PrefixPattern only.
func matchPattern(pattern, key string) bool {
	if p, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, p)
	}
	return pattern == key
}
