package routing

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"leshy/internal/config"
	"leshy/internal/logging"
	"leshy/internal/metrics"
)

// Manager serializes access to an Aggregator and drives an Installer to
// bring the kernel route table in line with it. Aggregator state is
// mutated under its own lock, which is released before any kernel I/O
// runs; installer calls never hold the aggregator lock.
type Manager struct {
	installer Installer
	agg       *Aggregator
	aggMu     sync.Mutex

	zoneRoutes   map[string]map[string]bool // zone -> set of IP strings
	zoneRoutesMu sync.RWMutex

	log *logging.Logger
}

// NewManager returns a Manager whose aggregator targets
// aggregationPrefix (32 disables aggregation) and which applies routes
// through installer.
func NewManager(aggregationPrefix int, installer Installer) *Manager {
	return &Manager{
		installer:  installer,
		agg:        NewAggregator(aggregationPrefix),
		zoneRoutes: make(map[string]map[string]bool),
		log:        logging.WithComponent("routing"),
	}
}

// AddRoute installs a route for ip under zone's disposition. IPv4
// addresses go through the aggregator; IPv6 addresses always install a
// single /128, since the aggregator only operates on 32-bit networks.
func (m *Manager) AddRoute(ip net.IP, zone *config.Zone) error {
	if v4 := ip.To4(); v4 != nil {
		return m.addRouteV4(v4, zone)
	}
	return m.addRouteSimple(ip, 128, zone)
}

func (m *Manager) addRouteV4(ip net.IP, zone *config.Zone) error {
	m.aggMu.Lock()
	actions := m.agg.ProcessIP(ip, zone.Name, zone.RouteType, zone.RouteTarget)
	m.aggMu.Unlock()

	if len(actions) == 0 {
		return nil
	}

	if err := Apply(m.installer, actions); err != nil {
		metrics.Get().RouteErrors.WithLabelValues(zone.Name).Inc()
		return err
	}

	for _, act := range actions {
		if act.Kind == ActionAdd {
			metrics.Get().RecordRouteAction("add", zone.Name)
			metrics.Get().RouteInstalled.Inc()
		} else {
			metrics.Get().RecordRouteAction("remove", zone.Name)
			metrics.Get().RouteInstalled.Dec()
		}
	}

	m.trackRoute(zone.Name, ip.String())
	return nil
}

// addRouteSimple installs prefixLen directly, bypassing the aggregator.
func (m *Manager) addRouteSimple(ip net.IP, prefixLen uint8, zone *config.Zone) error {
	var err error
	switch zone.RouteType {
	case config.RouteDev:
		var device string
		device, err = resolveDevice(zone.RouteTarget)
		if err == nil {
			err = m.installer.AddDev(ip, prefixLen, device)
		}
	default:
		gw := net.ParseIP(zone.RouteTarget)
		if gw == nil {
			return fmt.Errorf("zone %s: invalid gateway %q", zone.Name, zone.RouteTarget)
		}
		err = m.installer.AddVia(ip, prefixLen, gw)
	}
	if err != nil {
		return err
	}

	m.trackRoute(zone.Name, ip.String())
	return nil
}

// AddStaticRoute installs cidr (e.g. "149.154.160.0/20" or a bare IP)
// for zone, bypassing aggregation entirely. The address is registered
// with the aggregator so a later aggregate never overlaps it.
func (m *Manager) AddStaticRoute(cidr string, zone *config.Zone) error {
	ip, prefixLen, err := parseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("static route %q: %w", cidr, err)
	}

	m.log.Info("adding static route", "cidr", cidr, "zone", zone.Name)

	if v4 := ip.To4(); v4 != nil {
		m.aggMu.Lock()
		m.agg.RegisterStaticIP(v4, zone.Name)
		m.aggMu.Unlock()
	}

	return m.addRouteSimple(ip, prefixLen, zone)
}

// CleanupZone removes zone from route tracking and from the
// aggregator's bookkeeping. It does not withdraw any kernel route:
// installed routes are left to expire or be replaced naturally.
func (m *Manager) CleanupZone(zoneName string) {
	m.zoneRoutesMu.Lock()
	ips := m.zoneRoutes[zoneName]
	delete(m.zoneRoutes, zoneName)
	m.zoneRoutesMu.Unlock()

	m.log.Info("removed zone from tracking", "zone", zoneName, "route_count", len(ips))

	m.aggMu.Lock()
	m.agg.CleanupZone(zoneName)
	m.aggMu.Unlock()
}

// ZoneRouteCount returns how many addresses are tracked for zoneName.
func (m *Manager) ZoneRouteCount(zoneName string) int {
	m.zoneRoutesMu.RLock()
	defer m.zoneRoutesMu.RUnlock()
	return len(m.zoneRoutes[zoneName])
}

func (m *Manager) trackRoute(zoneName, ipStr string) {
	m.zoneRoutesMu.Lock()
	defer m.zoneRoutesMu.Unlock()
	if m.zoneRoutes[zoneName] == nil {
		m.zoneRoutes[zoneName] = make(map[string]bool)
	}
	m.zoneRoutes[zoneName][ipStr] = true
}

// parseCIDR parses "a.b.c.d/n" or a bare IP, defaulting the prefix to
// /32 (v4) or /128 (v6) when no slash is present.
func parseCIDR(cidr string) (net.IP, uint8, error) {
	if host, prefixStr, found := strings.Cut(cidr, "/"); found {
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, 0, fmt.Errorf("invalid IP %q", host)
		}
		prefix, err := strconv.Atoi(prefixStr)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid prefix length %q", prefixStr)
		}
		max := 32
		if ip.To4() == nil {
			max = 128
		}
		if prefix < 0 || prefix > max {
			return nil, 0, fmt.Errorf("prefix length %d exceeds maximum %d", prefix, max)
		}
		return ip, uint8(prefix), nil
	}

	ip := net.ParseIP(cidr)
	if ip == nil {
		return nil, 0, fmt.Errorf("invalid IP %q", cidr)
	}
	if ip.To4() != nil {
		return ip, 32, nil
	}
	return ip, 128, nil
}
