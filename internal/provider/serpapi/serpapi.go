// Package serpapi implements the SerpApi JSON adapter.
package serpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/serp-rank-tracker/internal/provider"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// ID is the provider id of the SerpApi adapter.
const ID = "serpapi"

// DefaultBaseURL is the SerpApi origin.
const DefaultBaseURL = "https://serpapi.com"

// Config controls adapter behavior.
type Config struct {
	BaseURL string
}

// Adapter queries SerpApi. Each call consumes independent quota, so the orchestrator
// may run a SerpApi group in parallel.
type Adapter struct {
	cfg Config
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds the SerpApi adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{cfg: cfg}
}

// ID implements provider.Adapter.
func (a *Adapter) ID() string { return ID }

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return "SerpApi" }

// BuildRequest implements provider.Adapter.
func (a *Adapter) BuildRequest(kw tracker.KeywordRecord, settings tracker.Settings) (tracker.Request, bool) {
	key := strings.TrimSpace(settings.Credentials)
	if key == "" || strings.ContainsAny(key, " \t\r\n:") {
		return tracker.Request{}, false
	}
	country := strings.ToUpper(strings.TrimSpace(kw.Country))
	if country == "" {
		country = "US"
	}

	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", kw.Keyword)
	q.Set("num", "100")
	q.Set("gl", strings.ToLower(country))
	q.Set("hl", language(country, settings.Regions))
	q.Set("api_key", key)
	if loc := location(kw.City, country, settings.Regions); loc != "" {
		q.Set("location", loc)
	}
	if kw.Device == tracker.DeviceMobile {
		q.Set("device", "mobile")
	}

	return tracker.Request{
		URL:    a.cfg.BaseURL + "/search.json?" + q.Encode(),
		Method: http.MethodGet,
		Body:   tracker.BodyJSON,
	}, true
}

func language(country string, regions tracker.RegionTable) string {
	if lang, ok := regions.Language(country); ok {
		return lang
	}
	return "en"
}

// location resolves the geo parameter: city plus country name, then nothing.
func location(city, country string, regions tracker.RegionTable) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return ""
	}
	if c, ok := regions[country]; ok && c.Name != "" {
		return fmt.Sprintf("%s,%s", city, c.Name)
	}
	return city
}

type organicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
}

type searchResponse struct {
	Error          string          `json:"error"`
	OrganicResults []organicResult `json:"organic_results"`
}

// ParseResponse implements provider.Adapter.
func (a *Adapter) ParseResponse(body []byte) ([]tracker.ResultItem, *provider.ProviderError) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil
	}
	if resp.Error != "" {
		if noResults(resp.Error) {
			return []tracker.ResultItem{}, nil
		}
		return nil, &provider.ProviderError{Code: errorCode(resp.Error), Message: resp.Error}
	}

	organic := resp.OrganicResults
	sort.SliceStable(organic, func(i, j int) bool {
		return organic[i].Position < organic[j].Position
	})
	items := make([]tracker.ResultItem, 0, len(organic))
	for _, r := range organic {
		if strings.TrimSpace(r.Link) == "" {
			continue
		}
		items = append(items, tracker.ResultItem{
			Title:    r.Title,
			URL:      r.Link,
			Position: len(items) + 1,
		})
	}
	return items, nil
}

// noResults reports SerpApi's reply for a query with an empty result page.
func noResults(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "hasn't returned any results")
}

// errorCode maps SerpApi's free-text errors onto short codes for logs and metrics.
func errorCode(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "run out of searches"), strings.Contains(lower, "rate limit"):
		return "quota"
	case strings.Contains(lower, "invalid api key"):
		return "auth"
	default:
		return "unknown"
	}
}

// MinimumDelay implements provider.Adapter.
func (a *Adapter) MinimumDelay() time.Duration { return 0 }

// PerKeywordOnly implements provider.Adapter.
func (a *Adapter) PerKeywordOnly() bool { return false }

// Parallel implements provider.Adapter.
func (a *Adapter) Parallel() bool { return true }

// BodyType implements provider.Adapter.
func (a *Adapter) BodyType() tracker.BodyType { return tracker.BodyJSON }
