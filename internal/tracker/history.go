package tracker

import (
	"errors"
	"fmt"
	"time"
)

// DateKey formats t as the history key "<year>-<month>-<day>" without zero padding.
func DateKey(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day())
}

// Merge folds an outcome into a keyword record. The returned record never shares
// mutable state with kw. A failed outcome leaves history, position and the last
// successful timestamp untouched and records an UpdateError instead.
func Merge(kw KeywordRecord, outcome Outcome, now time.Time) KeywordRecord {
	merged := kw.Clone()
	merged.Updating = false

	if outcome.Err != nil {
		provider := outcome.Provider
		var oe *OutcomeError
		if errors.As(outcome.Err, &oe) && oe.Provider != "" {
			provider = oe.Provider
		}
		merged.LastUpdateError = &UpdateError{
			Date:     now,
			Error:    outcome.Err.Error(),
			Provider: provider,
		}
		return merged
	}

	if merged.History == nil {
		merged.History = make(map[string]int, 1)
	}
	merged.History[DateKey(now)] = outcome.Rank
	merged.Position = outcome.Rank
	merged.URL = outcome.URL
	merged.LastResult = append([]ResultItem(nil), outcome.Results...)
	merged.LastUpdated = now
	merged.LastUpdateError = nil
	return merged
}
