package routing

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leshy/internal/config"
)

type call struct {
	op        string
	network   string
	prefixLen uint8
	target    string
}

type fakeInstaller struct {
	calls []call
	err   error
}

func (f *fakeInstaller) AddVia(network net.IP, prefixLen uint8, gateway net.IP) error {
	f.calls = append(f.calls, call{"via", network.String(), prefixLen, gateway.String()})
	return f.err
}

func (f *fakeInstaller) AddDev(network net.IP, prefixLen uint8, device string) error {
	f.calls = append(f.calls, call{"dev", network.String(), prefixLen, device})
	return f.err
}

func (f *fakeInstaller) Remove(network net.IP, prefixLen uint8) error {
	f.calls = append(f.calls, call{"remove", network.String(), prefixLen, ""})
	return f.err
}

func testZone(name string) *config.Zone {
	return &config.Zone{Name: name, RouteType: config.RouteVia, RouteTarget: "10.8.0.1"}
}

func TestManagerAddRouteV4AggregatesAndTracks(t *testing.T) {
	fi := &fakeInstaller{}
	m := NewManager(24, fi)
	zone := testZone("work")

	require.NoError(t, m.AddRoute(net.ParseIP("10.0.0.5"), zone))

	require.Len(t, fi.calls, 1)
	assert.Equal(t, "via", fi.calls[0].op)
	assert.Equal(t, uint8(24), fi.calls[0].prefixLen)
	assert.Equal(t, 1, m.ZoneRouteCount("work"))
}

func TestManagerAddRouteV6AlwaysUses128(t *testing.T) {
	fi := &fakeInstaller{}
	m := NewManager(24, fi)
	zone := testZone("work")

	require.NoError(t, m.AddRoute(net.ParseIP("2001:db8::1"), zone))

	require.Len(t, fi.calls, 1)
	assert.Equal(t, uint8(128), fi.calls[0].prefixLen)
}

func TestManagerAddStaticRouteBypassesAggregation(t *testing.T) {
	fi := &fakeInstaller{}
	m := NewManager(24, fi)
	zone := testZone("work")

	require.NoError(t, m.AddStaticRoute("149.154.160.0/20", zone))

	require.Len(t, fi.calls, 1)
	assert.Equal(t, uint8(20), fi.calls[0].prefixLen)
}

func TestManagerAddStaticRouteBarePrefixDefaultsTo32(t *testing.T) {
	fi := &fakeInstaller{}
	m := NewManager(24, fi)
	zone := testZone("work")

	require.NoError(t, m.AddStaticRoute("1.2.3.4", zone))

	require.Len(t, fi.calls, 1)
	assert.Equal(t, uint8(32), fi.calls[0].prefixLen)
}

func TestManagerCleanupZoneClearsTrackingNotInstaller(t *testing.T) {
	fi := &fakeInstaller{}
	m := NewManager(24, fi)
	zone := testZone("work")
	require.NoError(t, m.AddRoute(net.ParseIP("10.0.0.5"), zone))

	m.CleanupZone("work")

	assert.Equal(t, 0, m.ZoneRouteCount("work"))
	for _, c := range fi.calls {
		assert.NotEqual(t, "remove", c.op)
	}
}

func TestManagerStaticIPPreventsLaterAggregateOverlap(t *testing.T) {
	fi := &fakeInstaller{}
	m := NewManager(24, fi)

	require.NoError(t, m.AddStaticRoute("10.0.0.5/32", testZone("home")))
	staticCalls := len(fi.calls)
	require.NoError(t, m.AddRoute(net.ParseIP("10.0.0.200"), testZone("work")))

	// Only the calls driven by the aggregator are checked; the static
	// route's own /32 install comes before them.
	for _, c := range fi.calls[staticCalls:] {
		if c.prefixLen == 32 {
			assert.NotEqual(t, "10.0.0.5", c.network)
		}
	}
}
