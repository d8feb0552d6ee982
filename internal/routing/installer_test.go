package routing

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAddDevReadsDeviceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tun0")
	require.NoError(t, os.WriteFile(path, []byte("tun0\n"), 0o644))

	fi := &fakeInstaller{}
	actions := []RouteAction{{
		Kind:        ActionAdd,
		Network:     ipToU32(net.ParseIP("10.0.0.0")),
		PrefixLen:   24,
		RouteType:   "dev",
		RouteTarget: path,
	}}

	require.NoError(t, Apply(fi, actions))

	require.Len(t, fi.calls, 1)
	assert.Equal(t, "dev", fi.calls[0].op)
	assert.Equal(t, "tun0", fi.calls[0].target)
}

func TestApplyAddDevMissingFileIsError(t *testing.T) {
	fi := &fakeInstaller{}
	actions := []RouteAction{{
		Kind:        ActionAdd,
		Network:     ipToU32(net.ParseIP("10.0.0.0")),
		PrefixLen:   24,
		RouteType:   "dev",
		RouteTarget: filepath.Join(t.TempDir(), "missing"),
	}}

	err := Apply(fi, actions)
	require.Error(t, err)
	assert.Empty(t, fi.calls)
}
