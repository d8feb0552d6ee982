package routing

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leshy/internal/config"
)

func ip(s string) net.IP { return net.ParseIP(s) }

func TestNetworkAddressComputation(t *testing.T) {
	assert.Equal(t, ipToU32(ip("10.0.0.0")), networkAddress(ipToU32(ip("10.0.0.5")), 24))
	assert.Equal(t, ipToU32(ip("10.0.0.0")), networkAddress(ipToU32(ip("10.0.0.255")), 16))
	assert.Equal(t, ipToU32(ip("10.0.0.5")), networkAddress(ipToU32(ip("10.0.0.5")), 32))
	assert.Equal(t, uint32(0), networkAddress(ipToU32(ip("10.0.0.5")), 0))
}

func TestSplitNetworkCorrectness(t *testing.T) {
	base := networkAddress(ipToU32(ip("10.0.0.0")), 16)
	left, right := splitNetwork(base, 16)

	assert.Equal(t, ipToU32(ip("10.0.0.0")), left)
	assert.Equal(t, ipToU32(ip("10.0.128.0")), right)
}

func TestBasicAggregation(t *testing.T) {
	a := NewAggregator(24)
	actions := a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")

	require.Len(t, actions, 1)
	assert.Equal(t, ActionAdd, actions[0].Kind)
	assert.Equal(t, uint8(24), actions[0].PrefixLen)
	assert.Equal(t, ipToU32(ip("10.0.0.0")), actions[0].Network)
}

func TestSameZoneNoop(t *testing.T) {
	a := NewAggregator(24)
	a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")

	actions := a.ProcessIP(ip("10.0.0.6"), "work", config.RouteVia, "10.8.0.1")
	assert.Empty(t, actions)
}

func TestCrossZoneConflictSplitsAggregate(t *testing.T) {
	a := NewAggregator(24)
	a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")

	actions := a.ProcessIP(ip("10.0.0.6"), "home", config.RouteVia, "10.9.0.1")

	// One remove of the /24, eight sibling adds at /25../32 for the old
	// owner, then the new /32.
	require.Len(t, actions, 10)
	assert.Equal(t, ActionRemove, actions[0].Kind)
	assert.Equal(t, uint8(24), actions[0].PrefixLen)
	for i, sibling := range actions[1:9] {
		assert.Equal(t, ActionAdd, sibling.Kind)
		assert.Equal(t, uint8(25+i), sibling.PrefixLen)
		assert.Equal(t, "10.8.0.1", sibling.RouteTarget, "siblings belong to the original owner")
		assert.False(t, ipInNetwork(ipToU32(ip("10.0.0.6")), sibling.Network, sibling.PrefixLen))
	}

	last := actions[len(actions)-1]
	assert.Equal(t, ActionAdd, last.Kind)
	assert.Equal(t, uint8(32), last.PrefixLen)
	assert.Equal(t, ipToU32(ip("10.0.0.6")), last.Network)

	key, owner, ok := a.findCoveringRoute(ipToU32(ip("10.0.0.5")))
	require.True(t, ok)
	assert.Equal(t, "work", owner.zone)
	assert.True(t, ipInNetwork(ipToU32(ip("10.0.0.5")), key.network, key.prefixLen))

	key2, owner2, ok2 := a.findCoveringRoute(ipToU32(ip("10.0.0.6")))
	require.True(t, ok2)
	assert.Equal(t, "home", owner2.zone)
	assert.Equal(t, uint8(32), key2.prefixLen)
}

func TestForeignAggregateSplitAroundUpperHalfAddress(t *testing.T) {
	a := NewAggregator(24)
	a.ProcessIP(ip("10.0.0.5"), "home", config.RouteVia, "10.9.0.1")

	actions := a.ProcessIP(ip("10.0.0.200"), "work", config.RouteVia, "10.8.0.1")

	require.NotEmpty(t, actions)

	key, owner, ok := a.findCoveringRoute(ipToU32(ip("10.0.0.5")))
	require.True(t, ok)
	assert.Equal(t, "home", owner.zone)
	assert.NotEqual(t, uint8(24), key.prefixLen, "home's /24 must have been split into narrower siblings")

	key2, owner2, ok2 := a.findCoveringRoute(ipToU32(ip("10.0.0.200")))
	require.True(t, ok2)
	assert.Equal(t, "work", owner2.zone)
	assert.Equal(t, uint8(32), key2.prefixLen)
}

func TestDisabledAlwaysReturns32(t *testing.T) {
	a := NewAggregator(32)
	actions := a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")

	require.Len(t, actions, 1)
	assert.Equal(t, uint8(32), actions[0].PrefixLen)
	assert.Equal(t, ipToU32(ip("10.0.0.5")), actions[0].Network)
}

func TestDisabledNoneAlwaysReturns32(t *testing.T) {
	a := NewAggregator(0)
	actions := a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")

	require.Len(t, actions, 1)
	assert.Equal(t, uint8(32), actions[0].PrefixLen)
}

func TestDisabledModeIsIdempotent(t *testing.T) {
	a := NewAggregator(32)
	a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")

	actions := a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")
	assert.Empty(t, actions)
}

func TestCleanupZoneRemovesTracking(t *testing.T) {
	a := NewAggregator(24)
	a.ProcessIP(ip("10.0.0.5"), "work", config.RouteVia, "10.8.0.1")

	a.CleanupZone("work")

	assert.Empty(t, a.installed)
	assert.Empty(t, a.knownIPs)

	_, _, ok := a.findCoveringRoute(ipToU32(ip("10.0.0.5")))
	assert.False(t, ok)
}

func TestRegisterStaticIPSameZoneIsNoConflict(t *testing.T) {
	a := NewAggregator(24)
	a.RegisterStaticIP(ip("10.0.0.5"), "work")

	actions := a.ProcessIP(ip("10.0.0.200"), "work", config.RouteVia, "10.8.0.1")

	// The static IP sits in known_ips under the same zone, so the full
	// aggregate installs with no carve-outs and covers it.
	require.Len(t, actions, 1)
	assert.Equal(t, ActionAdd, actions[0].Kind)
	assert.Equal(t, uint8(24), actions[0].PrefixLen)
	assert.True(t, ipInNetwork(ipToU32(ip("10.0.0.5")), actions[0].Network, actions[0].PrefixLen))
}

func TestRegisterStaticIPPreventsOverlap(t *testing.T) {
	a := NewAggregator(24)
	a.RegisterStaticIP(ip("10.0.0.5"), "home")

	actions := a.ProcessIP(ip("10.0.0.200"), "work", config.RouteVia, "10.8.0.1")

	require.NotEmpty(t, actions)
	for _, act := range actions {
		if act.Kind == ActionAdd && act.PrefixLen == 32 {
			assert.NotEqual(t, ipToU32(ip("10.0.0.5")), act.Network)
		}
	}
}
