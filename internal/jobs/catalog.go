package jobs

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"

	"sjsage522/metricworker/pkg/errors"
)

// GroupMonthly runs every scraping job that reports monthly
const GroupMonthly = "monthly"

// suggestThreshold is the lowest Jaro-Winkler similarity worth suggesting
const suggestThreshold = 0.8

// Catalog holds the known jobs and groups
type Catalog struct {
	jobs   map[string]Spec
	order  []string
	groups map[string][]string
}

// catalogFile is the YAML overlay layout
type catalogFile struct {
	Jobs   []Spec              `yaml:"jobs"`
	Groups map[string][]string `yaml:"groups"`
}

// NewCatalog builds a catalog from specs. The monthly group holds every
// aov, rank, brandshare and epc job.
func NewCatalog(specs []Spec) *Catalog {
	c := &Catalog{jobs: make(map[string]Spec), groups: make(map[string][]string)}
	for _, s := range specs {
		c.put(s)
	}
	for _, name := range c.order {
		switch c.jobs[name].Kind {
		case KindAOV, KindRank, KindBrandShare, KindEPC:
			c.groups[GroupMonthly] = append(c.groups[GroupMonthly], name)
		}
	}
	return c
}

func (c *Catalog) put(s Spec) {
	if _, ok := c.jobs[s.Name]; !ok {
		c.order = append(c.order, s.Name)
	}
	c.jobs[s.Name] = s
}

// LoadCatalog returns the builtin catalog with the YAML file at path laid
// over it. Jobs with a builtin name replace it; groups replace groups of the
// same name. An empty path returns the builtin catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog(Builtin())
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfiguration("read job catalog "+path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewConfiguration("parse job catalog "+path, err)
	}

	for _, s := range file.Jobs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		c.put(s)
	}
	for name, members := range file.Groups {
		for _, m := range members {
			if _, ok := c.jobs[m]; !ok {
				return nil, errors.NewConfiguration(fmt.Sprintf("group %s lists unknown job %s", name, m), nil)
			}
		}
		c.groups[name] = members
	}
	return c, nil
}

// Get returns the named job
func (c *Catalog) Get(name string) (Spec, error) {
	if s, ok := c.jobs[name]; ok {
		return s, nil
	}
	msg := "unknown job " + name
	if suggestion := c.Suggest(name); suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %s?)", suggestion)
	}
	return Spec{}, errors.NewConfiguration(msg, nil)
}

// Jobs returns every job in catalog order
func (c *Catalog) Jobs() []Spec {
	out := make([]Spec, len(c.order))
	for i, name := range c.order {
		out[i] = c.jobs[name]
	}
	return out
}

// Group returns the jobs of the named group
func (c *Catalog) Group(name string) ([]Spec, error) {
	members, ok := c.groups[name]
	if !ok {
		msg := "unknown group " + name
		if suggestion := closest(name, c.GroupNames()); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", suggestion)
		}
		return nil, errors.NewConfiguration(msg, nil)
	}
	out := make([]Spec, 0, len(members))
	for _, m := range members {
		out = append(out, c.jobs[m])
	}
	return out, nil
}

// GroupNames returns the group names sorted
func (c *Catalog) GroupNames() []string {
	names := make([]string, 0, len(c.groups))
	for name := range c.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Suggest returns the job name closest to name, or "" when nothing is
// similar enough
func (c *Catalog) Suggest(name string) string {
	return closest(name, c.order)
}

func closest(name string, candidates []string) string {
	best, bestScore := "", suggestThreshold
	for _, candidate := range candidates {
		score := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(candidate), false)
		if score >= bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}
