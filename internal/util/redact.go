package util

import (
	"net/url"
	"strings"
)

const redactedValue = "[REDACTED]"

// MaskSensitiveQuery masks identity material in a raw query string before it
// is logged: tokens, email addresses and provider identifiers arrive in login
// redirect URLs and must not end up in log files. A query that does not parse
// is masked wholesale rather than logged as-is.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return redactedValue
	}
	masked := false
	for key := range values {
		if isSensitiveParam(key) {
			values.Set(key, redactedValue)
			masked = true
		}
	}
	if !masked {
		return rawQuery
	}
	return values.Encode()
}

func isSensitiveParam(key string) bool {
	switch k := strings.ToLower(strings.TrimSpace(key)); k {
	case "token", "access_token", "code", "email", "providerid", "displayname", "avatarurl":
		return true
	default:
		return strings.Contains(k, "secret") || strings.Contains(k, "password")
	}
}
