// Package geo resolves US zip codes to county and state from a static
// reference table.
package geo

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"marine_leads_backend/platform/refdata"

	"gopkg.in/yaml.v3"
)

//go:embed default_directory.yaml
var defaultDirectory []byte

// Region is the county and state a zip code belongs to.
type Region struct {
	County string `json:"county"`
	State  string `json:"state"`
}

// StateKey is the coverage key matching every zip in the state.
func (r Region) StateKey() string {
	return strings.ToUpper(r.State)
}

// CountyKey is the coverage key matching every zip in the county.
func (r Region) CountyKey() string {
	return CountyKey(r.State, r.County)
}

// CountyKey builds the canonical "STATE:county" coverage key.
func CountyKey(state, county string) string {
	return strings.ToUpper(strings.TrimSpace(state)) + ":" + strings.ToLower(strings.TrimSpace(county))
}

// NormalizeCoverageKey canonicalizes a vendor coverage entry. Entries are
// either a state code ("FL") or "STATE:County" ("FL:Miami-Dade").
func NormalizeCoverageKey(entry string) string {
	state, county, ok := strings.Cut(entry, ":")
	if !ok {
		return strings.ToUpper(strings.TrimSpace(entry))
	}
	return CountyKey(state, county)
}

// Covers reports whether any of the coverage entries includes r.
func (r Region) Covers(entries []string) bool {
	state, county := r.StateKey(), r.CountyKey()
	for _, e := range entries {
		key := NormalizeCoverageKey(e)
		if key == county || key == state {
			return true
		}
	}
	return false
}

type entry struct {
	Zip    string `yaml:"zip"`
	County string `yaml:"county"`
	State  string `yaml:"state"`
}

// Directory is an immutable zip lookup table.
type Directory struct {
	Version string
	zips    map[string]Region
}

// Registry serves the active directory.
type Registry = refdata.Store[Directory]

// NewRegistry loads the directory from path, or the embedded default when path is empty.
func NewRegistry(path string) (*Registry, error) {
	return refdata.NewStore("geo directory", path, defaultDirectory, Parse)
}

// Parse decodes a YAML directory.
func Parse(data []byte) (*Directory, error) {
	var doc struct {
		Version string  `yaml:"version"`
		Zips    []entry `yaml:"zips"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse geo directory: %w", err)
	}
	if len(doc.Zips) == 0 {
		return nil, errors.New("geo directory: no zip entries")
	}

	d := &Directory{Version: doc.Version, zips: make(map[string]Region, len(doc.Zips))}
	for _, e := range doc.Zips {
		zip := strings.TrimSpace(e.Zip)
		if len(zip) != 5 || e.State == "" || e.County == "" {
			return nil, fmt.Errorf("geo directory: invalid entry %+v", e)
		}
		d.zips[zip] = Region{County: strings.TrimSpace(e.County), State: strings.ToUpper(strings.TrimSpace(e.State))}
	}
	return d, nil
}

// Resolve looks up the region of a 5-digit zip code.
func (d *Directory) Resolve(zip string) (Region, bool) {
	r, ok := d.zips[strings.TrimSpace(zip)]
	return r, ok
}

// Len returns the number of known zip codes.
func (d *Directory) Len() int {
	return len(d.zips)
}
