// Package catalog loads the static list of local-news sources, grouped by
// region. A malformed or missing catalog is fatal for the run.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one configured content source. (State, County, Name) is its identity.
type Source struct {
	State    string `yaml:"-"`
	County   string `yaml:"-"`
	Name     string `yaml:"name"`
	Tier     string `yaml:"tier"`
	FeedURL  string `yaml:"feed_url"`
	Homepage string `yaml:"homepage"`
	Enabled  bool   `yaml:"enabled"`
}

// Key is the identity string used in logs and caches.
func (s Source) Key() string {
	return s.State + "/" + s.County + "/" + s.Name
}

// Region is a (state, county) pair with its sources and search phrasings.
type Region struct {
	State         string   `yaml:"state"`
	County        string   `yaml:"county"`
	SearchQueries []string `yaml:"search_queries"`
	Sources       []Source `yaml:"sources"`
}

func (r Region) String() string {
	return r.State + "/" + r.County
}

// Queries returns the configured search phrasings, or a single default
// "<County> County <State name>" phrasing when none are configured.
func (r Region) Queries() []string {
	out := make([]string, 0, len(r.SearchQueries))
	for _, q := range r.SearchQueries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) > 0 {
		return out
	}
	return []string{fmt.Sprintf("%s County %s", r.County, StateName(r.State))}
}

type Catalog struct {
	regions []Region
}

type document struct {
	Regions []Region `yaml:"regions"`
}

// Load reads and validates a catalog document from disk.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, errors.New("no regions configured")
	}

	seen := make(map[string]struct{})
	var errs []error
	for i := range doc.Regions {
		r := &doc.Regions[i]
		r.State = strings.ToUpper(strings.TrimSpace(r.State))
		r.County = strings.TrimSpace(r.County)
		if r.State == "" || r.County == "" {
			errs = append(errs, fmt.Errorf("region #%d: state and county are required", i+1))
			continue
		}
		for j := range r.Sources {
			s := &r.Sources[j]
			s.State, s.County = r.State, r.County
			s.Name = strings.TrimSpace(s.Name)
			s.FeedURL = strings.TrimSpace(s.FeedURL)
			s.Homepage = strings.TrimSpace(s.Homepage)
			if err := validateSource(*s); err != nil {
				errs = append(errs, fmt.Errorf("region %s source #%d: %w", r, j+1, err))
				continue
			}
			if _, dup := seen[s.Key()]; dup {
				errs = append(errs, fmt.Errorf("duplicate source %s", s.Key()))
				continue
			}
			seen[s.Key()] = struct{}{}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Catalog{regions: doc.Regions}, nil
}

func validateSource(s Source) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.FeedURL == "" && s.Homepage == "" {
		return fmt.Errorf("%s: feed_url or homepage is required", s.Name)
	}
	for _, raw := range []string{s.FeedURL, s.Homepage} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s: invalid url %q", s.Name, raw)
		}
	}
	return nil
}

// Regions returns every configured region in document order.
func (c *Catalog) Regions() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Sources returns every source, enabled or not, for catalog sync.
func (c *Catalog) Sources() []Source {
	var out []Source
	for _, r := range c.regions {
		out = append(out, r.Sources...)
	}
	return out
}

// ListEnabledSources returns the sources eligible for fetching.
func (c *Catalog) ListEnabledSources() []Source {
	var out []Source
	for _, r := range c.regions {
		for _, s := range r.Sources {
			if s.Enabled {
				out = append(out, s)
			}
		}
	}
	return out
}
