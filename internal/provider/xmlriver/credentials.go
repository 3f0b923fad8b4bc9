// Package xmlriver implements the XMLRiver Google and Yandex adapters.
package xmlriver

import "strings"

// DefaultBaseURL is the XMLRiver API origin.
const DefaultBaseURL = "http://xmlriver.com"

// Config controls adapter behavior.
type Config struct {
	// BaseURL overrides the API origin (tests point it at httptest servers).
	BaseURL string
}

func (c Config) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// parseCredentials splits the "user_id:api_key" credential string.
func parseCredentials(raw string) (user, key string, ok bool) {
	user, key, found := strings.Cut(strings.TrimSpace(raw), ":")
	user, key = strings.TrimSpace(user), strings.TrimSpace(key)
	if !found || user == "" || key == "" {
		return "", "", false
	}
	if i := strings.IndexByte(key, ':'); i >= 0 {
		key = key[:i]
	}
	return user, key, key != ""
}
