package reload

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leshy/internal/config"
	"leshy/internal/zones"
)

// syncedHandler is a fakeHandler safe to poll from the test while the
// watcher goroutine drives it.
type syncedHandler struct {
	mu      sync.Mutex
	cfg     *config.Config
	updates int
}

func (s *syncedHandler) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *syncedHandler) UpdateConfig(cfg *config.Config, matcher *zones.Matcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.updates++
}

func (s *syncedHandler) CleanupZone(string) {}

func (s *syncedHandler) ApplyStaticRoutes() int { return 0 }

func (s *syncedHandler) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

const watcherConfig = `
[server]
listen_address = "127.0.0.1:5355"
default_upstream = ["8.8.8.8:53"]
`

func TestWatcherReloadsOnConfigEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(watcherConfig), 0o644))

	initial, err := config.LoadWithIncludes(path)
	require.NoError(t, err)

	h := &syncedHandler{cfg: initial}
	w := NewWatcher(path, "", New(h))

	stop := make(chan struct{})
	defer close(stop)
	go w.Run(stop)

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(watcherConfig+`
[[zones]]
name = "work"
domains = ["example.com"]
route_type = "via"
route_target = "10.8.0.1"
`), 0o644))

	assert.Eventually(t, func() bool { return h.updateCount() > 0 },
		3*time.Second, 50*time.Millisecond, "watcher never applied the edited config")
	assert.Len(t, h.Config().Zones, 1)
}

func TestWatcherKeepsOldConfigOnBrokenEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(watcherConfig), 0o644))

	initial, err := config.LoadWithIncludes(path)
	require.NoError(t, err)

	h := &syncedHandler{cfg: initial}
	w := NewWatcher(path, "", New(h))

	stop := make(chan struct{})
	defer close(stop)
	go w.Run(stop)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("not toml {{{"), 0o644))

	// The broken edit must never reach the handler.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 0, h.updateCount())
	assert.Same(t, initial, h.Config())
}
