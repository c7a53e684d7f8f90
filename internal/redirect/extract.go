// Package redirect extracts identity fields from login-provider redirect URLs.
//
// Providers are expected to send the browser back to the page URL with
// providerId (plus optional displayName, email, avatarUrl) appended, but in
// practice the parameters arrive in four shapes: a standard query string, a
// fragment, parameters glued onto a path segment after a slash, or parameters
// embedded mid-string with no delimiter at all. Extract runs a cascade of
// increasingly permissive strategies over the raw URL and never fails louder
// than "not found". The cascade's precedence is part of the compatibility
// contract with deployed providers; a stricter parser must keep callers
// behind this interface.
package redirect

import (
	"net/url"
	"strings"
	"unicode"
)

// providerKey is the literal parameter marker the cascade keys on.
const providerKey = "providerId="

// Identity holds the account fields a login provider appends to the URL.
// ProviderID is the only required field.
type Identity struct {
	ProviderID  string
	DisplayName string
	Email       string
	AvatarURL   string
}

// Extract scans rawURL for identity parameters. The reported bool is false
// when no usable providerId is present; malformed input never produces an
// error, only "not found". Values are percent-decoded.
//
// Strategy order, first match wins:
//  1. no literal "providerId=" anywhere: not found
//  2. "?providerId=": parse the query section
//  3. "#providerId=": parse the fragment as a query string
//  4. "/providerId=": take everything after that slash, drop characters a
//     malformed upstream redirect may have glued on, parse the residue
//  5. otherwise: slice from the marker to the first character that cannot
//     belong to a parameter run, parse the slice
func Extract(rawURL string) (Identity, bool) {
	if !strings.Contains(rawURL, providerKey) {
		return Identity{}, false
	}

	var query string
	switch {
	case strings.Contains(rawURL, "?"+providerKey):
		query = querySection(rawURL)
	case strings.Contains(rawURL, "#"+providerKey):
		_, frag, _ := strings.Cut(rawURL, "#")
		query = frag
	case strings.Contains(rawURL, "/"+providerKey):
		idx := strings.Index(rawURL, "/"+providerKey)
		query = stripEmbedded(rawURL[idx+1:])
	default:
		idx := strings.Index(rawURL, providerKey)
		query = scanEmbedded(rawURL[idx:])
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return Identity{}, false
	}

	id := Identity{
		ProviderID:  values.Get("providerId"),
		DisplayName: values.Get("displayName"),
		Email:       values.Get("email"),
		AvatarURL:   values.Get("avatarUrl"),
	}
	if id.ProviderID == "" {
		return Identity{}, false
	}
	return id, true
}

// ExtractError returns the provider error parameter when the URL carries one,
// checking the query section first and the fragment second.
func ExtractError(rawURL string) (string, bool) {
	if strings.ContainsRune(rawURL, '?') {
		if v, ok := queryParam(querySection(rawURL), "error"); ok {
			return v, true
		}
	}
	if _, frag, found := strings.Cut(rawURL, "#"); found {
		if v, ok := queryParam(frag, "error"); ok {
			return v, true
		}
	}
	return "", false
}

// HasMarker reports whether rawURL contains the identity parameter marker at
// all. A marker that Extract cannot turn into an Identity means the redirect
// arrived without a usable provider identifier.
func HasMarker(rawURL string) bool {
	return strings.Contains(rawURL, providerKey)
}

// Clean returns the visible address with redirect parameters cleared: the
// query and fragment are dropped, scheme, host and path survive. Re-running
// Extract on a cleaned address finds nothing, so back-navigation does not
// re-trigger authentication.
func Clean(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// querySection returns the substring after the first '?' up to the next '#'.
func querySection(rawURL string) string {
	_, after, found := strings.Cut(rawURL, "?")
	if !found {
		return ""
	}
	if i := strings.IndexByte(after, '#'); i >= 0 {
		after = after[:i]
	}
	return after
}

func queryParam(query, key string) (string, bool) {
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", false
	}
	v := values.Get(key)
	if v == "" {
		return "", false
	}
	return v, true
}

// stripEmbedded removes every character that cannot belong to a slash-embedded
// parameter run: anything outside word characters, whitespace and =&%@.- was
// glued on by the upstream redirect and is dropped before parsing.
func stripEmbedded(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isEmbeddedRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isEmbeddedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	case unicode.IsSpace(r):
		return true
	case r == '=', r == '&', r == '%', r == '@', r == '.', r == '-':
		return true
	}
	return false
}

// scanEmbedded slices s at the first character that ends a bare parameter
// run: whitespace, quotes, angle brackets, backslashes or braces.
func scanEmbedded(s string) string {
	for i, r := range s {
		if terminatesRun(r) {
			return s[:i]
		}
	}
	return s
}

func terminatesRun(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '"', '\'', '<', '>', '\\', '{', '}':
		return true
	}
	return false
}
