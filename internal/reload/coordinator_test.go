package reload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leshy/internal/config"
	"leshy/internal/zones"
)

type fakeHandler struct {
	cfg            *config.Config
	cleanedUp      []string
	updatedCfg     *config.Config
	staticFailures int
	applyCalls     int
}

func (f *fakeHandler) Config() *config.Config { return f.cfg }

func (f *fakeHandler) UpdateConfig(cfg *config.Config, matcher *zones.Matcher) {
	f.updatedCfg = cfg
	f.cfg = cfg
}

func (f *fakeHandler) CleanupZone(zoneName string) {
	f.cleanedUp = append(f.cleanedUp, zoneName)
}

func (f *fakeHandler) ApplyStaticRoutes() int {
	f.applyCalls++
	return f.staticFailures
}

func zoneNamed(name string) config.Zone {
	return config.Zone{Name: name, Mode: config.ModeInclusive, Domains: []string{"example.com"}}
}

func TestCoordinatorApplyCleansUpRemovedZones(t *testing.T) {
	oldCfg := &config.Config{Zones: []config.Zone{zoneNamed("home"), zoneNamed("work")}}
	h := &fakeHandler{cfg: oldCfg}
	c := New(h)

	newCfg := &config.Config{Zones: []config.Zone{zoneNamed("work")}}
	require.NoError(t, c.Apply(newCfg))

	assert.Equal(t, []string{"home"}, h.cleanedUp)
	assert.Same(t, newCfg, h.updatedCfg)
}

func TestCoordinatorApplyKeepsOldConfigOnBadPattern(t *testing.T) {
	oldCfg := &config.Config{Zones: []config.Zone{zoneNamed("home")}}
	h := &fakeHandler{cfg: oldCfg}
	c := New(h)

	badZone := config.Zone{Name: "broken", Mode: config.ModeInclusive, Patterns: []string{"("}}
	newCfg := &config.Config{Zones: []config.Zone{badZone}}

	err := c.Apply(newCfg)
	require.Error(t, err)
	assert.Nil(t, h.updatedCfg)
	assert.Same(t, oldCfg, h.cfg)
}

func TestCoordinatorApplyReappliesStaticRoutesOnce(t *testing.T) {
	h := &fakeHandler{cfg: &config.Config{}}
	c := New(h)

	require.NoError(t, c.Apply(&config.Config{Zones: []config.Zone{zoneNamed("home")}}))

	assert.Equal(t, 1, h.applyCalls)
}

func TestDiffZonesReportsAddedAndRemoved(t *testing.T) {
	oldCfg := &config.Config{Zones: []config.Zone{zoneNamed("home"), zoneNamed("work")}}
	newCfg := &config.Config{Zones: []config.Zone{zoneNamed("work"), zoneNamed("travel")}}

	removed, added := diffZones(oldCfg, newCfg)

	assert.Equal(t, []string{"home"}, removed)
	require.Len(t, added, 1)
	assert.Equal(t, "travel", added[0].Name)
}
