package serial

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: seismometer
device: /dev/ttyUSB0
baud_rate: 9600
reconnect_interval: 500ms
delimiter: "\r\n"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "seismometer", cfg.Name)
	require.Equal(t, "/dev/ttyUSB0", cfg.Device)
	require.Equal(t, 9600, cfg.BaudRate)
	require.Equal(t, 500*time.Millisecond, cfg.ReconnectInterval)
	require.Equal(t, "\r\n", cfg.Delimiter)
	// Omitted fields keep their defaults.
	require.True(t, cfg.AutoConnect)
}

func TestLoadConfig_DisableAutoConnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: /dev/ttyS0\nauto_connect: false\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.False(t, cfg.AutoConnect)
	require.Equal(t, DefaultBaudRate, cfg.BaudRate)
	require.Equal(t, DefaultReconnectInterval, cfg.ReconnectInterval)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("baud_rate: [fast]\n"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("baud_rate: -1\n"), 0o644))
	_, err = LoadConfig(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Contains(t, err.Error(), "device path is required")
	require.Contains(t, err.Error(), "negative baud rate")
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Device: "/dev/ttyACM0", Delimiter: ";"}.withDefaults()
	require.Equal(t, "/dev/ttyACM0", cfg.Name)
	require.Equal(t, DefaultBaudRate, cfg.BaudRate)
	require.Equal(t, DefaultReconnectInterval, cfg.ReconnectInterval)

	lp, ok := cfg.Parser.(*LineParser)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("a")}, lp.Parse([]byte("a;b")))

	custom := NewLineParser("|")
	cfg = Config{Device: "/dev/ttyACM0", Delimiter: ";", Parser: custom}.withDefaults()
	require.Same(t, custom, cfg.Parser)
}
