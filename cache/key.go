package cache

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Label defaults applied when the caller scopes neither topic nor identity.
const (
	DefaultContextLabel  = "general"
	DefaultIdentityLabel = "anonymous"
)

// keyPrefix namespaces answer-cache keys inside shared stores.
const keyPrefix = "answer"

// BuildKey derives the deterministic cache key for a query. The query text
// is normalized (trimmed, lowercased) and reduced with FNV-1a to a fixed
// base-36 digest; the context and identity labels are kept verbatim in the
// key so pattern invalidation can target them. Equal inputs always
// produce equal keys.
func BuildKey(queryText, contextLabel, identityLabel string) string {
	q := strings.ToLower(strings.TrimSpace(queryText))
	c := normalizeLabel(contextLabel, DefaultContextLabel)
	i := normalizeLabel(identityLabel, DefaultIdentityLabel)

	h := fnv.New32a()
	h.Write([]byte(q))

	var b strings.Builder
	b.Grow(len(keyPrefix) + len(c) + len(i) + 10)
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(c)
	b.WriteByte(':')
	b.WriteString(i)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(h.Sum32()), 36))
	return b.String()
}

// normalizeLabel trims the label, falling back to the default when the
// caller left it empty.
func normalizeLabel(label, fallback string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	return fallback
}
