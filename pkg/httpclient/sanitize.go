package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameter name fragments whose values are
// redacted, matched case-insensitively.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
	"code",
}

// Redacted replaces sensitive values in sanitized URLs.
const Redacted = "[REDACTED]"

// SanitizeURL renders u with sensitive query parameter values and any
// userinfo password redacted. Used for logs and scenario narration.
func SanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	safe := *u
	if safe.User != nil {
		if _, hasPassword := safe.User.Password(); hasPassword {
			safe.User = url.UserPassword(safe.User.Username(), "xxxxx")
		}
	}

	if safe.RawQuery != "" {
		q := u.Query()
		for param := range q {
			if isSensitiveParam(param) {
				q.Set(param, Redacted)
			}
		}
		safe.RawQuery = q.Encode()
	}
	return safe.String()
}

// SanitizeURLString is SanitizeURL for an unparsed URL. Unparseable input
// is returned unchanged.
func SanitizeURLString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return SanitizeURL(u)
}

func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, sensitive := range sensitiveParams {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
