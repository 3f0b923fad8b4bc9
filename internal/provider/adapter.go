// Package provider defines the adapter contract implemented by every ranking-data
// backend and the registry used to resolve which adapter serves a keyword.
package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// Adapter encapsulates one search-result backend.
type Adapter interface {
	// ID is the stable identifier used in settings and keyword engine overrides.
	ID() string
	// Name is a human readable label.
	Name() string
	// BuildRequest is pure. ok is false when the configured credentials are malformed.
	BuildRequest(kw tracker.KeywordRecord, settings tracker.Settings) (req tracker.Request, ok bool)
	// ParseResponse never fails hard: malformed bodies yield no items, and in-band
	// provider errors yield no items plus the reported error.
	ParseResponse(body []byte) ([]tracker.ResultItem, *ProviderError)
	// MinimumDelay is the pacing the provider requires between consecutive requests.
	MinimumDelay() time.Duration
	// PerKeywordOnly adapters are reachable only through a keyword engine override.
	PerKeywordOnly() bool
	// Parallel adapters have independent per-request quota and may be fanned out.
	Parallel() bool
	BodyType() tracker.BodyType
}

// ProviderError is an error the backend reported inside an otherwise valid response.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// EffectiveDelay returns the larger of the adapter minimum and the configured delay.
func EffectiveDelay(a Adapter, configured time.Duration) time.Duration {
	if a == nil {
		return configured
	}
	return max(a.MinimumDelay(), configured)
}

// MaskCredentials replaces every occurrence of secret, and of each colon-separated part
// of it, in s so URLs can be logged.
func MaskCredentials(s, secret string) string {
	if secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, secret, "***")
	for _, part := range strings.Split(secret, ":") {
		if part = strings.TrimSpace(part); part != "" {
			s = strings.ReplaceAll(s, part, "***")
		}
	}
	return s
}
