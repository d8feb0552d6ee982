// Package zones compiles the configured zone list into a matcher that
// classifies a query name against each zone's inclusive/exclusive rules.
package zones

import (
	"fmt"
	"regexp"
	"strings"

	"leshy/internal/config"
	"leshy/internal/logging"
)

// entry is one compiled zone: the static config plus its precomputed
// domain set and pattern set.
type entry struct {
	zone      *config.Zone
	domainSet map[string]bool
	patterns  []*regexp.Regexp
}

// Matcher is an ordered, immutable list of compiled zones. Build once at
// config load or reload; never mutate, replace the whole matcher.
type Matcher struct {
	entries []entry
	log     *logging.Logger
}

// New compiles the given zone list in order. It fails if any zone's
// pattern does not compile as a regular expression, naming the
// offending zone.
func New(zoneList []config.Zone) (*Matcher, error) {
	entries := make([]entry, 0, len(zoneList))
	for i := range zoneList {
		z := &zoneList[i]

		domainSet := make(map[string]bool, len(z.Domains))
		for _, d := range z.Domains {
			domainSet[strings.ToLower(d)] = true
		}

		patterns := make([]*regexp.Regexp, 0, len(z.Patterns))
		for _, p := range z.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("zone %q: invalid pattern %q: %w", z.Name, p, err)
			}
			patterns = append(patterns, re)
		}

		entries = append(entries, entry{zone: z, domainSet: domainSet, patterns: patterns})
	}

	return &Matcher{entries: entries, log: logging.WithComponent("zones")}, nil
}

// FindZone walks the compiled zone list in configured order and returns
// the first zone that selects qname, or nil if none do. Zone order
// encodes precedence: more specific zones are expected first, with
// exclusive catch-all zones typically last.
func (m *Matcher) FindZone(qname string) *config.Zone {
	qname = strings.TrimSuffix(qname, ".")
	lower := strings.ToLower(qname)

	for _, e := range m.entries {
		matched := e.matches(lower)

		switch e.zone.Mode {
		case config.ModeExclusive:
			if !matched {
				m.log.Debug("exclusive zone match", "zone", e.zone.Name, "qname", qname)
				return e.zone
			}
			m.log.Debug("excluded from exclusive zone", "zone", e.zone.Name, "qname", qname)
		default: // inclusive
			if matched {
				return e.zone
			}
		}
	}

	return nil
}

// matches reports whether qname (already lowercased, no trailing dot)
// hits this zone's domain set or pattern set.
func (e entry) matches(lower string) bool {
	remaining := lower
	for {
		if e.domainSet[remaining] {
			return true
		}
		idx := strings.IndexByte(remaining, '.')
		if idx < 0 {
			break
		}
		remaining = remaining[idx+1:]
	}

	for _, re := range e.patterns {
		if re.MatchString(lower) {
			return true
		}
	}

	return false
}
