// Package reload implements the reload coordinator: given a freshly
// parsed and validated configuration, it diffs zones against the
// currently running one, cleans up routing bookkeeping for zones that
// disappeared, builds a new zone matcher, and atomically swaps the
// handler over to the new config. It also owns the fsnotify-driven
// watcher that triggers this sequence from on-disk edits instead of an
// external signal.
package reload

import (
	"context"
	"time"

	"leshy/internal/config"
	"leshy/internal/logging"
	"leshy/internal/metrics"
	"leshy/internal/resolver"
	"leshy/internal/zones"
)

// Handler is the subset of *resolver.Handler the coordinator drives.
// Defined as an interface so tests can supply a fake without spinning
// up real sockets.
type Handler interface {
	Config() *config.Config
	UpdateConfig(cfg *config.Config, matcher *zones.Matcher)
	CleanupZone(zoneName string)
	ApplyStaticRoutes() int
}

var _ Handler = (*resolver.Handler)(nil)

// Coordinator applies new configurations to a running Handler, one at
// a time. It is not safe for concurrent Apply calls; the watcher
// serializes them through its single event-processing goroutine.
type Coordinator struct {
	handler     Handler
	log         *logging.Logger
	retryCancel context.CancelFunc
}

// New returns a Coordinator driving handler.
func New(handler Handler) *Coordinator {
	return &Coordinator{
		handler: handler,
		log:     logging.WithComponent("reload"),
	}
}

// Apply diffs zones against the running config, cleans up removed
// zones, builds a new matcher (keeping the old config on failure),
// swaps the handler over, and re-applies static routes for every zone
// in the new config. If any static route fails, a retry loop is started that
// re-attempts every 10 seconds until all of them succeed, handling the
// case where a tunnel device file isn't populated yet at reload time.
func (c *Coordinator) Apply(newCfg *config.Config) error {
	oldCfg := c.handler.Config()

	removed, added := diffZones(oldCfg, newCfg)
	for _, name := range removed {
		c.log.Info("zone removed on reload, cleaning up routing bookkeeping", "zone", name)
		c.handler.CleanupZone(name)
	}

	matcher, err := zones.New(newCfg.Zones)
	if err != nil {
		c.log.Error("new config failed to compile, keeping old configuration", "error", err)
		metrics.Get().ConfigReload.WithLabelValues("failure").Inc()
		return err
	}

	c.handler.UpdateConfig(newCfg, matcher)
	c.log.Info("configuration reloaded", "zones", len(newCfg.Zones), "added", len(added), "removed", len(removed))
	metrics.Get().ConfigReload.WithLabelValues("success").Inc()

	c.reapplyStaticRoutes()
	return nil
}

// reapplyStaticRoutes installs every zone's static routes and, on
// partial failure, starts (or restarts) a background retry loop at a
// fixed 10-second interval until a subsequent attempt reports zero
// failures. Only one retry loop runs at a time; a new reload cancels
// whatever loop was in flight before starting its own.
func (c *Coordinator) reapplyStaticRoutes() {
	if c.retryCancel != nil {
		c.retryCancel()
		c.retryCancel = nil
	}

	if failures := c.handler.ApplyStaticRoutes(); failures == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.retryCancel = cancel
	c.log.Warn("some static routes failed to install, retrying every 10s")

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if failures := c.handler.ApplyStaticRoutes(); failures == 0 {
					c.log.Info("all static routes installed after retry")
					return
				}
			}
		}
	}()
}

// diffZones returns the names present in old but not new (removed) and
// the config.Zone values present in new but not old (added), matching
// by zone name.
func diffZones(oldCfg, newCfg *config.Config) (removed []string, added []config.Zone) {
	oldNames := make(map[string]bool, len(oldCfg.Zones))
	for _, z := range oldCfg.Zones {
		oldNames[z.Name] = true
	}
	newNames := make(map[string]bool, len(newCfg.Zones))
	for _, z := range newCfg.Zones {
		newNames[z.Name] = true
		if !oldNames[z.Name] {
			added = append(added, z)
		}
	}
	for name := range oldNames {
		if !newNames[name] {
			removed = append(removed, name)
		}
	}
	return removed, added
}
