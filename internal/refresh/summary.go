package refresh

import "github.com/JakeFAU/serp-rank-tracker/internal/tracker"

// Summary counts batch results by outcome.
type Summary struct {
	Total           int `json:"total"`
	Found           int `json:"found"`
	NotFound        int `json:"not_found"`
	Failed          int `json:"failed"`
	Canceled        int `json:"canceled"`
	PersistFailures int `json:"persist_failures"`
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Outcome.Err != nil && tracker.KindOf(r.Outcome.Err) == tracker.KindCanceled:
			s.Canceled++
		case r.Outcome.Err != nil:
			s.Failed++
		case r.Outcome.Rank > 0:
			s.Found++
		default:
			s.NotFound++
		}
		if r.PersistErr != nil {
			s.PersistFailures++
		}
	}
	return s
}
