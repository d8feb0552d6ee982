// Package resolver implements the DNS request handler: cache lookup,
// zone-based upstream selection, sequential failover across a zone's
// configured servers, route installation for resolved addresses, and
// response caching with the TTL cascade.
package resolver

import (
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"leshy/internal/config"
	"leshy/internal/dnscache"
	"leshy/internal/logging"
	"leshy/internal/metrics"
	"leshy/internal/routing"
	"leshy/internal/zones"
)

// Handler answers DNS queries and implements dns.Handler. Config,
// matcher, and cache are swapped as a unit on reload; routes is stable
// across the handler's lifetime and is never swapped, since it owns
// in-kernel state that a new config must build on top of, not replace.
type Handler struct {
	mu      sync.RWMutex
	cfg     *config.Config
	matcher *zones.Matcher
	cache   *dnscache.Cache

	routes *routing.Manager
	log    *logging.Logger
}

// New builds a handler from an initial config and matcher. It owns the
// route manager it creates for the lifetime of the process.
func New(cfg *config.Config, matcher *zones.Matcher) *Handler {
	installer := newPlatformInstaller()
	return &Handler{
		cfg:     cfg,
		matcher: matcher,
		cache:   dnscache.New(cfg.Server.CacheSize),
		routes:  routing.NewManager(aggregationPrefix(cfg), installer),
		log:     logging.WithComponent("resolver"),
	}
}

func aggregationPrefix(cfg *config.Config) int {
	if cfg.Server.RouteAggregationPrefix != nil {
		return *cfg.Server.RouteAggregationPrefix
	}
	return 32
}

// UpdateConfig swaps in a new config and matcher. The cache is
// recreated if its configured size changed, otherwise simply cleared,
// mirroring the cost of rebuilding a differently-sized map versus
// reusing the existing one.
func (h *Handler) UpdateConfig(cfg *config.Config, matcher *zones.Matcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cfg.Server.CacheSize != h.cfg.Server.CacheSize {
		h.cache = dnscache.New(cfg.Server.CacheSize)
	} else {
		h.cache.Clear()
	}
	h.cfg = cfg
	h.matcher = matcher
	h.log.Debug("handler config updated, cache cleared")
}

// Routes exposes the route manager for static-route application and
// zone cleanup during reload.
func (h *Handler) Routes() *routing.Manager { return h.routes }

// Config returns the handler's current config snapshot.
func (h *Handler) Config() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// ServeDNS implements dns.Handler.
func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	if r.Opcode != dns.OpcodeQuery {
		msg := new(dns.Msg)
		msg.SetRcode(r, dns.RcodeNotImplemented)
		w.WriteMsg(msg)
		return
	}
	if len(r.Question) == 0 {
		msg := new(dns.Msg)
		msg.SetReply(r)
		w.WriteMsg(msg)
		return
	}

	start := time.Now()
	q := r.Question[0]
	qname := q.Name
	qtype := dns.TypeToString[q.Qtype]
	h.log.Info("received query", "qname", qname, "qtype", qtype)

	h.mu.RLock()
	cfg, matcher, cache := h.cfg, h.matcher, h.cache
	h.mu.RUnlock()

	zone := matcher.FindZone(qname)
	zoneName := zoneLabel(zone)

	if cache.Enabled() {
		if cached := cache.Lookup(qname, q.Qtype); cached != nil {
			h.log.Debug("cache hit", "qname", qname, "qtype", qtype)
			h.addRoutesFromResponse(cached, qname, matcher)

			cached.Id = r.Id
			w.WriteMsg(cached)
			metrics.Get().RecordQuery(qtype, zoneName, true, time.Since(start).Seconds())
			return
		}
	}

	upstreams, protocol, serverFor := selectUpstreams(cfg, zone)

	response, usedServer, lastRcode := h.tryUpstreams(r, upstreams, protocol, serverFor, qname)

	if response == nil {
		h.log.Error("all upstreams failed", "qname", qname, "rcode", dns.RcodeToString[lastRcode])
		msg := new(dns.Msg)
		msg.SetRcode(r, lastRcode)
		w.WriteMsg(msg)
		metrics.Get().RecordQuery(qtype, zoneName, false, time.Since(start).Seconds())
		return
	}

	h.log.Debug("got response", "qname", qname, "answers", len(response.Answer))
	h.addRoutesFromResponse(response, qname, matcher)

	if cache.Enabled() && response.Rcode != dns.RcodeServerFailure {
		minTTL, maxTTL, negTTL := cfg.EffectiveTTLs(zone, usedServer)
		ttl := dnscache.EffectiveTTL(response, minTTL, maxTTL, negTTL)
		cache.Insert(qname, q.Qtype, response, ttl)
	}

	response.Id = r.Id
	w.WriteMsg(response)
	metrics.Get().RecordQuery(qtype, zoneName, false, time.Since(start).Seconds())
}

func zoneLabel(zone *config.Zone) string {
	if zone == nil {
		return "none"
	}
	return zone.Name
}

// selectUpstreams returns the ordered list of upstream addresses for a
// query, the protocol to speak, and a lookup from address to the
// config.DNSServer it came from (nil entries mean "no per-server
// override", as with the default upstream list).
func selectUpstreams(cfg *config.Config, zone *config.Zone) ([]string, config.Protocol, map[string]*config.DNSServer) {
	serverFor := make(map[string]*config.DNSServer)

	if zone != nil && len(zone.DNSServers) > 0 {
		addrs := make([]string, 0, len(zone.DNSServers))
		for i := range zone.DNSServers {
			srv := &zone.DNSServers[i]
			addrs = append(addrs, srv.Address)
			serverFor[srv.Address] = srv
		}
		proto := zone.DNSProtocol
		if proto == "" {
			proto = config.ProtoUDP
		}
		return addrs, proto, serverFor
	}

	return cfg.Server.DefaultUpstream, config.ProtoUDP, serverFor
}

// tryUpstreams attempts each upstream in order over protocol, returning
// the first successful response. A failed attempt is logged and the
// loop proceeds to the next upstream; only total exhaustion is
// reported to the caller.
func (h *Handler) tryUpstreams(r *dns.Msg, upstreams []string, protocol config.Protocol, serverFor map[string]*config.DNSServer, qname string) (*dns.Msg, *config.DNSServer, int) {
	lastRcode := dns.RcodeServerFailure
	query := buildUpstreamQuery(r)

	for i, upstream := range upstreams {
		resp, err := forward(query, upstream, string(protocol))
		if err == nil {
			return resp, serverFor[upstream], dns.RcodeSuccess
		}

		h.log.Warn("upstream failed, trying next", "qname", qname, "upstream", upstream,
			"error", err, "remaining", len(upstreams)-i-1)
		metrics.Get().DNSUpstreamErr.WithLabelValues(string(protocol)).Inc()
		lastRcode = dns.RcodeServerFailure
	}

	return nil, nil, lastRcode
}

// buildUpstreamQuery constructs a fresh query message for forwarding,
// copying only id, op_code, recursion_desired, and the first question
// from the client's request, not the request wholesale, so that any
// extra questions, EDNS options, or other flag bits the client set
// never reach the upstream.
func buildUpstreamQuery(r *dns.Msg) *dns.Msg {
	query := new(dns.Msg)
	query.Id = r.Id
	query.Opcode = r.Opcode
	query.RecursionDesired = r.RecursionDesired
	query.Question = []dns.Question{r.Question[0]}
	return query
}

// addRoutesFromResponse extracts A/AAAA answers, matches qname against
// the zone table, and installs routes for every resolved address in
// the background so the DNS response is never delayed by route
// installation.
func (h *Handler) addRoutesFromResponse(response *dns.Msg, qname string, matcher *zones.Matcher) {
	zone := matcher.FindZone(qname)
	if zone == nil {
		return
	}

	var ips []net.IP
	for _, rr := range response.Answer {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A)
		case *dns.AAAA:
			ips = append(ips, v.AAAA)
		}
	}
	if len(ips) == 0 {
		h.log.Debug("no A/AAAA records in response", "qname", qname)
		return
	}

	go func(zone config.Zone, ips []net.IP) {
		for _, ip := range ips {
			if err := h.routes.AddRoute(ip, &zone); err != nil {
				h.log.Warn("failed to add route", "ip", ip, "zone", zone.Name, "qname", qname, "error", err)
			}
		}
	}(*zone, ips)
}

// ApplyStaticRoutes installs every configured static route for every
// zone that has them. It returns the number of routes that failed to
// install (0 means full success).
func (h *Handler) ApplyStaticRoutes() int {
	h.mu.RLock()
	cfg := h.cfg
	h.mu.RUnlock()

	failures := 0
	for i := range cfg.Zones {
		zone := &cfg.Zones[i]
		for _, cidr := range zone.StaticRoutes {
			if err := h.routes.AddStaticRoute(cidr, zone); err != nil {
				h.log.Warn("failed to add static route", "cidr", cidr, "zone", zone.Name, "error", err)
				failures++
			}
		}
	}
	return failures
}

// HasStaticRoutes reports whether any configured zone carries static
// routes.
func (h *Handler) HasStaticRoutes() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, z := range h.cfg.Zones {
		if len(z.StaticRoutes) > 0 {
			return true
		}
	}
	return false
}

// CleanupZone removes zoneName from route tracking.
func (h *Handler) CleanupZone(zoneName string) {
	h.routes.CleanupZone(zoneName)
}
