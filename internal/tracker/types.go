package tracker

import (
	"net/http"
	"sort"
	"time"
)

// Device is the search device a keyword is tracked for.
type Device string

// Supported devices.
const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// BodyType hints how a provider response body is encoded.
type BodyType string

// Response body encodings understood by the transport.
const (
	BodyText BodyType = "text"
	BodyJSON BodyType = "json"
)

// ResultItem is one organic result extracted from a provider response.
type ResultItem struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// UpdateError annotates a keyword whose last refresh failed.
type UpdateError struct {
	Date     time.Time `json:"date"`
	Error    string    `json:"error"`
	Provider string    `json:"scraper"`
}

// KeywordRecord is a tracked search phrase together with its position history.
type KeywordRecord struct {
	ID      string `json:"id"`
	Keyword string `json:"keyword"`
	Domain  string `json:"domain"`
	Country string `json:"country"`
	City    string `json:"city,omitempty"`
	// Engine optionally pins the keyword to one provider regardless of the global setting.
	Engine string `json:"engine,omitempty"`
	Device Device `json:"device"`

	Position int    `json:"position"`
	URL      string `json:"url,omitempty"`
	// History maps DateKey values to the rank observed that day; 0 means not found.
	History         map[string]int `json:"history"`
	LastResult      []ResultItem   `json:"lastResult"`
	LastUpdated     time.Time      `json:"lastUpdated"`
	LastUpdateError *UpdateError   `json:"lastUpdateError"`
	Updating        bool           `json:"updating"`
}

// Clone returns a deep copy so merges never alias the caller's maps or slices.
func (k KeywordRecord) Clone() KeywordRecord {
	cp := k
	if k.History != nil {
		cp.History = make(map[string]int, len(k.History))
		for d, r := range k.History {
			cp.History[d] = r
		}
	}
	if k.LastResult != nil {
		cp.LastResult = append([]ResultItem(nil), k.LastResult...)
	}
	if k.LastUpdateError != nil {
		e := *k.LastUpdateError
		cp.LastUpdateError = &e
	}
	return cp
}

// KeywordUpdate carries the fields written back to storage after a merge.
type KeywordUpdate struct {
	Position        int
	URL             string
	History         map[string]int
	LastResult      []ResultItem
	LastUpdated     time.Time
	LastUpdateError *UpdateError
	Updating        bool
}

// UpdateFor builds the storage update for a merged record.
func UpdateFor(k KeywordRecord) KeywordUpdate {
	return KeywordUpdate{
		Position:        k.Position,
		URL:             k.URL,
		History:         k.History,
		LastResult:      k.LastResult,
		LastUpdated:     k.LastUpdated,
		LastUpdateError: k.LastUpdateError,
		Updating:        k.Updating,
	}
}

// Outcome is the result of one scrape attempt for one keyword.
type Outcome struct {
	KeywordID string       `json:"keyword_id"`
	Provider  string       `json:"provider"`
	Rank      int          `json:"rank"`
	URL       string       `json:"url,omitempty"`
	Results   []ResultItem `json:"results,omitempty"`
	Err       error        `json:"-"`
}

// Found reports whether the tracked domain was located.
func (o Outcome) Found() bool {
	return o.Err == nil && o.Rank > 0
}

// RetryEntry is a member of the retry queue.
type RetryEntry struct {
	KeywordID  string    `json:"keyword_id"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SortRetryEntries orders entries by enqueue time, breaking ties by keyword id.
func SortRetryEntries(entries []RetryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].EnqueuedAt.Equal(entries[j].EnqueuedAt) {
			return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
		}
		return entries[i].KeywordID < entries[j].KeywordID
	})
}

// RetryIDs extracts the keyword ids of the given entries.
func RetryIDs(entries []RetryEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.KeywordID)
	}
	return ids
}

// Country describes one row of the region table.
type Country struct {
	Name     string `json:"name" yaml:"name"`
	Language string `json:"language" yaml:"language"`
}

// RegionTable maps ISO 3166 alpha-2 codes to country metadata.
type RegionTable map[string]Country

// Language returns the configured language for a country, if any.
func (t RegionTable) Language(code string) (string, bool) {
	c, ok := t[code]
	if !ok || c.Language == "" {
		return "", false
	}
	return c.Language, true
}

// Settings is the read-only snapshot a refresh batch runs against.
type Settings struct {
	ProviderID     string
	Credentials    string
	Delay          time.Duration
	RetryOnFailure bool
	Regions        RegionTable
	Location       *time.Location
}

// Request describes a single provider call.
type Request struct {
	URL    string
	Method string
	Body   BodyType
	Header http.Header
}
