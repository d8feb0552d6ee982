// Command leshy is the DNS-driven split-tunnel router: it parses a
// TOML configuration, starts the resolver on listen_address, installs
// each zone's static routes, and, if enabled, watches the config
// file for edits and reloads without a restart.
//
// Usage:
//
//	leshy [config-path]
//	leshy service install [--name N] [--config P]
//	leshy service uninstall [--name N]
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"leshy/internal/brand"
	"leshy/internal/config"
	"leshy/internal/logging"
	"leshy/internal/metrics"
	"leshy/internal/reload"
	"leshy/internal/resolver"
	"leshy/internal/service"
	"leshy/internal/zones"
)

func main() {
	logging.SetDefault(logging.New(logging.DefaultConfig()))

	if len(os.Args) > 1 && os.Args[1] == "service" {
		if err := runService(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(os.Args[1:]); err != nil {
		logging.Default().Error("fatal", "error", err)
		os.Exit(1)
	}
}

func runServer(args []string) error {
	log := logging.WithComponent("main")

	configPath := ""
	if len(args) > 0 {
		configPath = args[0]
	} else {
		configPath = findConfig()
	}
	log.Info("loading configuration", "path", configPath)

	cfg, err := config.LoadWithIncludes(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Info("configuration loaded", "listen", cfg.Server.ListenAddress, "zones", len(cfg.Zones), "auto_reload", cfg.Server.AutoReload)

	matcher, err := zones.New(cfg.Zones)
	if err != nil {
		return fmt.Errorf("compile zones: %w", err)
	}

	handler := resolver.New(cfg, matcher)
	if failures := handler.ApplyStaticRoutes(); failures > 0 {
		if cfg.Server.RouteFailureMode == config.FailureServfail {
			return fmt.Errorf("%d static routes failed to install", failures)
		}
		log.Warn("some static routes failed on startup, retrying every 10s", "failures", failures)
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if handler.ApplyStaticRoutes() == 0 {
					log.Info("all static routes installed after retry")
					return
				}
			}
		}()
	}

	srv := resolver.NewServer(cfg.Server.ListenAddress, handler)

	var stopWatch chan struct{}
	if cfg.Server.AutoReload {
		coordinator := reload.New(handler)
		watcher := reload.NewWatcher(configPath, cfg.Server.ConfigDir, coordinator)
		stopWatch = make(chan struct{})
		go func() {
			if err := watcher.Run(stopWatch); err != nil {
				log.Error("config watcher exited", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	started := time.Now()
	go func() {
		for range time.Tick(10 * time.Second) {
			metrics.Get().Uptime.Set(time.Since(started).Seconds())
		}
	}()

	if addr := cfg.Server.MetricsAddress; addr != "" {
		go func() {
			log.Info("metrics endpoint listening", "addr", addr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("metrics endpoint exited", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	log.Info("leshy DNS server started", "addr", cfg.Server.ListenAddress, "version", brand.Version)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	}

	if stopWatch != nil {
		close(stopWatch)
	}
	return srv.Shutdown()
}

// findConfig searches the documented default locations in order,
// falling back to the last candidate (the system-wide default path) if
// none exist so the resulting
// error message names a concrete path.
func findConfig() string {
	home, _ := os.UserHomeDir()
	candidates := []string{
		"leshy.toml",
		"config.toml",
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, ".config", "leshy", "config.toml"))
	}
	candidates = append(candidates, brand.DefaultConfigPath())

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func runService(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s service install|uninstall [--name N] [--config P]", brand.BinaryName)
	}

	var name, cfgPath string
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--name":
			if i+1 < len(rest) {
				i++
				name = rest[i]
			}
		case "--config":
			if i+1 < len(rest) {
				i++
				cfgPath = rest[i]
			}
		}
	}

	switch args[0] {
	case "install":
		return service.Install(name, cfgPath)
	case "uninstall":
		return service.Uninstall(name)
	default:
		return fmt.Errorf("unknown service subcommand %q", args[0])
	}
}
