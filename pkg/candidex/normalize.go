// Package candidex maintains the in-memory index mapping normalized
// LinkedIn identity to upstream candidate records, and the refresh policy
// that keeps it usable without ever blocking readers on a slow upstream.
package candidex

import "strings"

// linkedInMarker must survive normalization for a key to participate in the
// reverse index.
const linkedInMarker = "linkedin.com/"

// NormalizeLinkedInKey canonicalizes a LinkedIn URL into an index key:
// lower-case, scheme and "www." stripped, query string and fragment
// stripped, trailing slash stripped. Indexing and querying both go through
// this function so the two always compose.
//
// The same profile written as
//
//	https://www.linkedin.com/in/jane-doe/?x=1#y
//	http://linkedin.com/in/jane-doe
//	linkedin.com/in/Jane-Doe/
//
// yields the single key "linkedin.com/in/jane-doe".
func NormalizeLinkedInKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}

	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	key = strings.TrimPrefix(key, "www.")

	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}

	return strings.TrimSuffix(key, "/")
}

// IsLinkedInKey reports whether a normalized key is a LinkedIn profile link
// and therefore eligible for the reverse index.
func IsLinkedInKey(key string) bool {
	return strings.Contains(key, linkedInMarker)
}

// KeyFromHandle converts a bare profile handle ("jane-doe", "@jane-doe",
// "in/jane-doe") into an index key. Input that already looks like a URL is
// normalized as one.
func KeyFromHandle(handle string) string {
	h := strings.Trim(strings.TrimSpace(handle), "/")
	h = strings.TrimPrefix(h, "@")
	if h == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(h), "linkedin.com") {
		return NormalizeLinkedInKey(h)
	}
	h = strings.TrimPrefix(h, "in/")
	return NormalizeLinkedInKey(linkedInMarker + "in/" + h)
}

// LinkedInKeysFromURLs normalizes and dedupes a list of raw URLs, keeping
// only LinkedIn profile links, in first-seen order.
func LinkedInKeysFromURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var keys []string
	for _, u := range urls {
		key := NormalizeLinkedInKey(u)
		if key == "" || !IsLinkedInKey(key) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
