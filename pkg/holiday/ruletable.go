package holiday

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleTable is the on-disk shape of a holiday rule table.
//
//	national:
//	  - 2025-01-01
//	  - 2025-12-25
//	offices:
//	  madrid:
//	    - 2025-05-15
//	  barcelona:
//	    - 2025-09-24
type RuleTable struct {
	National []string            `yaml:"national"`
	Offices  map[string][]string `yaml:"offices"`
}

// RuleTableProvider serves holidays from a YAML rule table loaded at
// construction time. Rule content is external configuration; this
// provider only indexes it.
type RuleTableProvider struct {
	mu       sync.RWMutex
	national map[int][]time.Time
	offices  map[string]map[int][]time.Time
}

// LoadRuleTable reads and indexes a YAML rule table from disk.
func LoadRuleTable(path string) (*RuleTableProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table: %w", err)
	}
	var table RuleTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse rule table: %w", err)
	}
	return NewRuleTableProvider(table)
}

// NewRuleTableProvider indexes an already-parsed rule table.
func NewRuleTableProvider(table RuleTable) (*RuleTableProvider, error) {
	p := &RuleTableProvider{
		national: make(map[int][]time.Time),
		offices:  make(map[string]map[int][]time.Time),
	}
	for _, s := range table.National {
		d, err := ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("national date %q: %w", s, err)
		}
		p.national[d.Year()] = append(p.national[d.Year()], d)
	}
	for office, dates := range table.Offices {
		byYear := make(map[int][]time.Time)
		for _, s := range dates {
			d, err := ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("office %s date %q: %w", office, s, err)
			}
			byYear[d.Year()] = append(byYear[d.Year()], d)
		}
		p.offices[office] = byYear
	}
	return p, nil
}

// Holidays returns national holidays plus any office-specific ones for
// the scope. Unknown scopes get the national calendar only.
func (p *RuleTableProvider) Holidays(_ context.Context, scope string, year int) (Set, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set := make(Set)
	for _, d := range p.national[year] {
		set.Add(Holiday{Scope: ScopeNational, Date: d, IsNational: true})
	}
	if scope != "" && scope != ScopeNational {
		if byYear, ok := p.offices[scope]; ok {
			for _, d := range byYear[year] {
				set.Add(Holiday{Scope: scope, Date: d})
			}
		}
	}
	return set, nil
}
