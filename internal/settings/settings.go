// Package settings builds the read-only refresh settings snapshot from configuration.
package settings

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/serp-rank-tracker/internal/config"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

//go:embed countries.yaml
var defaultCountries []byte

// DefaultRegions returns the embedded country table.
func DefaultRegions() (tracker.RegionTable, error) {
	return ParseRegions(defaultCountries)
}

// ParseRegions decodes a YAML country table. Codes are upper-cased.
func ParseRegions(data []byte) (tracker.RegionTable, error) {
	raw := map[string]tracker.Country{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse region table: %w", err)
	}
	table := make(tracker.RegionTable, len(raw))
	for code, c := range raw {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		table[code] = c
	}
	return table, nil
}

// LoadRegions reads a country table from path, or the embedded one when path is empty.
func LoadRegions(path string) (tracker.RegionTable, error) {
	if path == "" {
		return DefaultRegions()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region table: %w", err)
	}
	return ParseRegions(data)
}

// FromConfig snapshots the tracker section for one batch.
func FromConfig(cfg config.TrackerConfig) (tracker.Settings, error) {
	regions, err := LoadRegions(cfg.RegionsFile)
	if err != nil {
		return tracker.Settings{}, err
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return tracker.Settings{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	delay := cfg.DelayMs
	if delay < 0 {
		delay = 0
	}
	return tracker.Settings{
		ProviderID:     strings.TrimSpace(cfg.Provider),
		Credentials:    cfg.Credentials,
		Delay:          time.Duration(delay) * time.Millisecond,
		RetryOnFailure: cfg.RetryOnFailure,
		Regions:        regions,
		Location:       loc,
	}, nil
}
