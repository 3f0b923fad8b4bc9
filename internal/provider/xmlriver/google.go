package xmlriver

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/serp-rank-tracker/internal/provider"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// GoogleID is the provider id of the XMLRiver Google adapter.
const GoogleID = "xmlriver"

const (
	defaultGoogleCountry = "US"
	defaultGoogleCode    = 2840
	googleGroupBy        = "100"
)

// googleCountryCodes maps ISO country codes to XMLRiver Google country ids.
var googleCountryCodes = map[string]int{
	"IN": 2356,
	"RU": 2008,
	"US": 2840,
	"GB": 2826,
	"DE": 2276,
	"FR": 2250,
	"BR": 2076,
	"AU": 2036,
	"CA": 2124,
	"JP": 2392,
	"KR": 2410,
	"CN": 2156,
	"AE": 2784,
	"SA": 2682,
	"SG": 2702,
	"IL": 2376,
	"TR": 2792,
	"PL": 2616,
	"NL": 2528,
	"IT": 2380,
	"ES": 2724,
}

// googleLanguageOverrides win over the region table.
var googleLanguageOverrides = map[string]string{
	"IN": "en",
	"RU": "ru",
}

// Google fetches Google results through XMLRiver.
type Google struct {
	cfg Config
}

var _ provider.Adapter = (*Google)(nil)

// NewGoogle builds the Google adapter.
func NewGoogle(cfg Config) *Google {
	return &Google{cfg: cfg}
}

// ID implements provider.Adapter.
func (g *Google) ID() string { return GoogleID }

// Name implements provider.Adapter.
func (g *Google) Name() string { return "XMLRiver (Google)" }

// BuildRequest implements provider.Adapter.
func (g *Google) BuildRequest(kw tracker.KeywordRecord, settings tracker.Settings) (tracker.Request, bool) {
	user, key, ok := parseCredentials(settings.Credentials)
	if !ok {
		return tracker.Request{}, false
	}
	country := strings.ToUpper(strings.TrimSpace(kw.Country))
	if country == "" {
		country = defaultGoogleCountry
	}
	code, known := googleCountryCodes[country]
	if !known {
		code = defaultGoogleCode
	}

	q := url.Values{}
	q.Set("user", user)
	q.Set("key", key)
	q.Set("query", kw.Keyword)
	q.Set("groupby", googleGroupBy)
	q.Set("country", strconv.Itoa(code))
	q.Set("lang", googleLanguage(country, settings.Regions))

	return tracker.Request{
		URL:    g.cfg.baseURL() + "/search/xml?" + q.Encode(),
		Method: http.MethodGet,
		Body:   tracker.BodyText,
	}, true
}

func googleLanguage(country string, regions tracker.RegionTable) string {
	if lang, ok := googleLanguageOverrides[country]; ok {
		return lang
	}
	if lang, ok := regions.Language(country); ok {
		return lang
	}
	return "en"
}

// ParseResponse implements provider.Adapter.
func (g *Google) ParseResponse(body []byte) ([]tracker.ResultItem, *provider.ProviderError) {
	return ParseResults(body)
}

// MinimumDelay implements provider.Adapter.
func (g *Google) MinimumDelay() time.Duration { return 0 }

// PerKeywordOnly implements provider.Adapter.
func (g *Google) PerKeywordOnly() bool { return false }

// Parallel implements provider.Adapter.
func (g *Google) Parallel() bool { return false }

// BodyType implements provider.Adapter.
func (g *Google) BodyType() tracker.BodyType { return tracker.BodyText }
