package noteid

import "strings"

// Type names used to build cache keys. Kept here so every package derives
// keys the same way.
const (
	TypeExperience = "Experience"
	TypeEntry      = "Entry"
)

// CacheKey returns the stable cache key for an entity: "Typename:id".
// Deterministic function of type name and identifier, matching the local
// cache store's fragment addressing.
func CacheKey(typename string, id ID) string {
	return typename + ":" + id.value
}

// ParseCacheKey splits a cache key back into its type name and identifier.
// Returns ok=false when the key does not contain a separator.
func ParseCacheKey(key string) (typename string, id ID, ok bool) {
	typename, raw, ok := strings.Cut(key, ":")
	if !ok {
		return "", ID{}, false
	}

	// Offline identifiers themselves contain ":", so only the first
	// separator belongs to the type name.
	return typename, New(raw), true
}
