package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsInvalidWithoutIdentity(t *testing.T) {
	// DefaultConfig deliberately leaves device.interface and stack.ip unset;
	// Validate should reject it until a caller supplies them.
	err := Validate(DefaultConfig())
	require.ErrorIs(t, err, ErrEmptyInterface)
}

func TestLoadFromKVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netstackd.conf")
	contents := "# netstackd config\n" +
		"device.interface=eth0\n" +
		"stack.ip=192.168.1.1\n" +
		"stack.gateway=192.168.1.254\n" +
		"\n" +
		"log.level=debug\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth0", cfg.Device.Interface)
	require.Equal(t, "192.168.1.1", cfg.Stack.IP)
	require.Equal(t, "192.168.1.254", cfg.Stack.Gateway)
	require.Equal(t, "debug", cfg.Log.Level)
	// Untouched defaults should survive the overlay.
	require.Equal(t, "pcap", cfg.Device.Backend)
	require.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netstackd.yaml")
	contents := "device:\n  interface: eth1\n  backend: rawsocket\nstack:\n  ip: 10.0.0.2\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth1", cfg.Device.Interface)
	require.Equal(t, "rawsocket", cfg.Device.Backend)
	require.Equal(t, "10.0.0.2", cfg.Stack.IP)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netstackd.conf")
	require.NoError(t, os.WriteFile(path, []byte("device.interface=eth0\nstack.ip=192.168.1.1\n"), 0o644))

	t.Setenv("NETSTACKD_STACK_IP", "10.1.1.1")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.1.1.1", cfg.Stack.IP)
}

func TestKVFileProviderRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.conf")
	require.NoError(t, os.WriteFile(path, []byte("not-a-kv-line\n"), 0o644))

	_, err := File(path).Read()
	require.Error(t, err)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Interface = "eth0"
	cfg.Stack.IP = "192.168.1.1"
	cfg.Device.Backend = "nope"
	require.ErrorIs(t, Validate(cfg), ErrInvalidBackend)
}

func TestValidateRejectsBadIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Interface = "eth0"
	cfg.Stack.IP = "not-an-ip"
	require.ErrorIs(t, Validate(cfg), ErrInvalidIP)
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, ParseLogLevel("debug"), ParseLogLevel("DEBUG"))
}
