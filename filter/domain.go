// Package filter decides, per intercepted call, whether the call belongs in the aggregation scope.
package filter

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru"
)

const decisionCacheSize = 512

// Domains accepts hosts matching any of its patterns. With no patterns every host is accepted.
//
// Decisions are pure, so they are memoised per host.
type Domains struct {
	patterns []*regexp.Regexp
	cache    *lru.Cache
}

// NewDomains compiles patterns, which use regexp syntax and are matched anywhere in the host.
func NewDomains(patterns ...string) (*Domains, error) {
	d := &Domains{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid domain pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}

	cache, err := lru.New(decisionCacheSize)
	if err != nil {
		return nil, err
	}
	d.cache = cache
	return d, nil
}

func (d *Domains) Accepts(host string) bool {
	if d == nil || len(d.patterns) == 0 {
		return true
	}
	if v, ok := d.cache.Get(host); ok {
		return v.(bool)
	}
	accepted := false
	for _, re := range d.patterns {
		if re.MatchString(host) {
			accepted = true
			break
		}
	}
	d.cache.Add(host, accepted)
	return accepted
}
