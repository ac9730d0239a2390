package httputil

import "net/url"

var secretParams = []string{"apiKey", "apikey", "api_key", "token"}

// redact strips credentials from a URL before it reaches a log line
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}

	u.RawQuery = q.Encode()
	return u.String()
}
