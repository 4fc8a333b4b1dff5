// Package identity derives stable item identifiers from canonical URLs.
// Two spellings of the same resource (relative vs. absolute, with or without
// tracking query parameters) resolve to the same identifier; distinct
// resources never collide because the identifier is a sha256 digest of the
// full canonical URL, not a path slug.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ID is the hex-encoded sha256 digest of a canonical URL.
type ID string

// Tracking parameters stripped during canonicalization.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"referrer":     true,
	"source":       true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// Resolve returns the identity of rawURL. Relative references are resolved
// against base; a nil base with a relative rawURL is an error, never a
// silently truncated identity.
func Resolve(rawURL string, base *url.URL) (ID, error) {
	canonical, err := CanonicalURL(rawURL, base)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(canonical))
	return ID(hex.EncodeToString(sum[:])), nil
}

// CanonicalURL resolves rawURL against base and normalizes it: lowercase
// scheme and host, no fragment, tracking parameters removed, remaining query
// parameters sorted, trailing slash trimmed.
func CanonicalURL(rawURL string, base *url.URL) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}

	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if !abs.IsAbs() || abs.Host == "" {
		return "", fmt.Errorf("cannot canonicalize relative URL %q without a base", rawURL)
	}

	u := *abs
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = canonicalQuery(u.Query())
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if trackingParams[strings.ToLower(key)] {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, key := range keys {
		kept[key] = values[key]
	}
	return kept.Encode()
}
