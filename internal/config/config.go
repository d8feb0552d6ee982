// Package config loads and validates the TOML configuration that drives
// the zone matcher, resolver, and route manager.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ZoneMode selects whether a zone's rules include or exclude matching
// names.
type ZoneMode string

const (
	ModeInclusive ZoneMode = "inclusive"
	ModeExclusive ZoneMode = "exclusive"
)

// RouteType selects how a resolved address is routed.
type RouteType string

const (
	RouteVia RouteType = "via"
	RouteDev RouteType = "dev"
)

// Protocol selects the transport used to query a zone's upstreams.
type Protocol string

const (
	ProtoUDP Protocol = "udp"
	ProtoTCP Protocol = "tcp"
)

// RouteFailureMode controls how route-install failures are surfaced.
type RouteFailureMode string

const (
	FailureServfail RouteFailureMode = "servfail"
	FailureFallback RouteFailureMode = "fallback"
)

// DNSServer is one upstream resolver, with optional TTL overrides that
// take precedence over the owning zone's and the server's global
// defaults.
type DNSServer struct {
	Address     string `toml:"address"`
	CacheMinTTL *int64 `toml:"cache_min_ttl,omitempty"`
	CacheMaxTTL *int64 `toml:"cache_max_ttl,omitempty"`
	CacheNegTTL *int64 `toml:"cache_negative_ttl,omitempty"`
}

// UnmarshalTOML accepts both the terse `"host:port"` string form and the
// rich `{ address = "...", cache_min_ttl = ... }` table form for a
// dns_servers entry.
func (d *DNSServer) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case string:
		d.Address = v
		return nil
	case map[string]any:
		if addr, ok := v["address"].(string); ok {
			d.Address = addr
		} else {
			return fmt.Errorf("dns_servers entry missing address")
		}
		if t, ok := toInt64(v["cache_min_ttl"]); ok {
			d.CacheMinTTL = &t
		}
		if t, ok := toInt64(v["cache_max_ttl"]); ok {
			d.CacheMaxTTL = &t
		}
		if t, ok := toInt64(v["cache_negative_ttl"]); ok {
			d.CacheNegTTL = &t
		}
		return nil
	default:
		return fmt.Errorf("dns_servers entry must be a string or table, got %T", value)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Zone is a named routing policy.
type Zone struct {
	Name         string      `toml:"name"`
	Mode         ZoneMode    `toml:"mode"`
	DNSServers   []DNSServer `toml:"dns_servers"`
	RouteType    RouteType   `toml:"route_type"`
	RouteTarget  string      `toml:"route_target"`
	Domains      []string    `toml:"domains"`
	Patterns     []string    `toml:"patterns"`
	StaticRoutes []string    `toml:"static_routes"`
	DNSProtocol  Protocol    `toml:"dns_protocol"`
	CacheMinTTL  *int64      `toml:"cache_min_ttl,omitempty"`
	CacheMaxTTL  *int64      `toml:"cache_max_ttl,omitempty"`
	CacheNegTTL  *int64      `toml:"cache_negative_ttl,omitempty"`
}

// Server holds the process-wide settings.
type Server struct {
	ListenAddress          string           `toml:"listen_address"`
	DefaultUpstream        []string         `toml:"default_upstream"`
	RouteFailureMode       RouteFailureMode `toml:"route_failure_mode"`
	AutoReload             bool             `toml:"auto_reload"`
	ConfigDir              string           `toml:"config_dir,omitempty"`
	CacheSize              int              `toml:"cache_size"`
	CacheMinTTL            int64            `toml:"cache_min_ttl"`
	CacheMaxTTL            int64            `toml:"cache_max_ttl"`
	CacheNegTTL            int64            `toml:"cache_negative_ttl"`
	RouteAggregationPrefix *int             `toml:"route_aggregation_prefix,omitempty"`
	MetricsAddress         string           `toml:"metrics_address,omitempty"`
}

// Config is the top-level parsed configuration.
type Config struct {
	Server Server `toml:"server"`
	Zones  []Zone `toml:"zones"`
}

// zonesOnly is the shape accepted for config.d include files that carry
// nothing but a zone list.
type zonesOnly struct {
	Zones []Zone `toml:"zones"`
}

// defaults applies the documented defaults for fields a TOML document
// left unset.
func (c *Config) defaults() {
	if c.Server.RouteFailureMode == "" {
		c.Server.RouteFailureMode = FailureFallback
	}
	if c.Server.CacheSize == 0 {
		c.Server.CacheSize = 1000
	}
	if c.Server.CacheMinTTL == 0 {
		c.Server.CacheMinTTL = 60
	}
	if c.Server.CacheMaxTTL == 0 {
		c.Server.CacheMaxTTL = 3600
	}
	if c.Server.CacheNegTTL == 0 {
		c.Server.CacheNegTTL = 30
	}
	for i := range c.Zones {
		if c.Zones[i].Mode == "" {
			c.Zones[i].Mode = ModeInclusive
		}
		if c.Zones[i].DNSProtocol == "" {
			c.Zones[i].DNSProtocol = ProtoUDP
		}
	}
}

// EffectiveTTLs resolves the min/max/negative TTL cascade for a given
// server (may be nil) and zone: per-server override, then per-zone
// override, then the global server default.
func (c *Config) EffectiveTTLs(z *Zone, srv *DNSServer) (min, max, neg int64) {
	min, max, neg = c.Server.CacheMinTTL, c.Server.CacheMaxTTL, c.Server.CacheNegTTL
	if z != nil {
		if z.CacheMinTTL != nil {
			min = *z.CacheMinTTL
		}
		if z.CacheMaxTTL != nil {
			max = *z.CacheMaxTTL
		}
		if z.CacheNegTTL != nil {
			neg = *z.CacheNegTTL
		}
	}
	if srv != nil {
		if srv.CacheMinTTL != nil {
			min = *srv.CacheMinTTL
		}
		if srv.CacheMaxTTL != nil {
			max = *srv.CacheMaxTTL
		}
		if srv.CacheNegTTL != nil {
			neg = *srv.CacheNegTTL
		}
	}
	return min, max, neg
}

// ZoneByName returns the zone with the given name, or nil.
func (c *Config) ZoneByName(name string) *Zone {
	for i := range c.Zones {
		if c.Zones[i].Name == name {
			return &c.Zones[i]
		}
	}
	return nil
}

// ValidationError names one field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every validation failure found in one pass,
// so a malformed config reports all of its problems at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return strings.Join(parts, "; ")
}

func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks that the listen address carries a non-zero port,
// default_upstream is non-empty, every inclusive zone has at least one
// selector, every pattern compiles, the aggregation prefix is in
// range, and zone names are unique.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if _, port, err := net.SplitHostPort(c.Server.ListenAddress); err != nil || port == "" || port == "0" {
		errs = append(errs, ValidationError{"server.listen_address", "must include a non-zero port"})
	}
	if len(c.Server.DefaultUpstream) == 0 {
		errs = append(errs, ValidationError{"server.default_upstream", "must be non-empty"})
	}
	if p := c.Server.RouteAggregationPrefix; p != nil && (*p < 8 || *p > 32) {
		errs = append(errs, ValidationError{"server.route_aggregation_prefix", "must be in [8,32]"})
	}

	seen := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		if seen[z.Name] {
			errs = append(errs, ValidationError{"zones." + z.Name, "duplicate zone name"})
		}
		seen[z.Name] = true

		if z.Mode == ModeInclusive && len(z.Domains) == 0 && len(z.Patterns) == 0 && len(z.StaticRoutes) == 0 {
			errs = append(errs, ValidationError{"zones." + z.Name, "inclusive zone needs domains, patterns, or static_routes"})
		}
		for _, p := range z.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				errs = append(errs, ValidationError{"zones." + z.Name + ".patterns", fmt.Sprintf("invalid pattern %q: %v", p, err)})
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
