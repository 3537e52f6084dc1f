package wbtv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write_config(t *testing.T, contents string) string {
	t.Helper()

	var path = filepath.Join(t.TempDir(), "wbtv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestReadConfig(t *testing.T) {
	var path = write_config(t, `
port: /dev/ttyUSB0
speed: 19200
wired_or: true
sense_chip: gpiochip0
sense_line: 17
sense_idle_high: true
dummy_sth: true
adv_mode: true
error_per_second: 100
time_beacon_seconds: 30
min_backoff_us: 1500
max_backoff_us: 9000
max_wait_ms: 25
log_dir: /var/log/wbtv
`)

	var c, err = ReadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", c.Port)
	assert.Equal(t, 19200, c.Speed)
	assert.True(t, c.WiredOR)
	assert.Equal(t, "gpiochip0", c.SenseChip)
	assert.Equal(t, 17, c.SenseLine)
	assert.True(t, c.SenseIdleHigh)
	assert.Equal(t, 30, c.TimeBeaconSeconds)

	var opts = c.Options()
	assert.True(t, opts.DummySTH)
	assert.True(t, opts.AdvMode)
	assert.True(t, opts.RecordTime, "AdvMode implies RecordTime")
	assert.EqualValues(t, 100, opts.ErrorPerSecond)
	assert.EqualValues(t, 1500, opts.MinBackoff)
	assert.EqualValues(t, 9000, opts.MaxBackoff)
	assert.EqualValues(t, 25, opts.MaxWait)
}

func TestReadConfigDefaultSpeed(t *testing.T) {
	var c, err = ReadConfig(write_config(t, "port: /dev/ttyAMA0\n"))
	require.NoError(t, err)

	assert.Equal(t, 9600, c.Speed)
}

func TestReadConfigWiredORNeedsSense(t *testing.T) {
	var _, err = ReadConfig(write_config(t, "port: /dev/ttyAMA0\nwired_or: true\n"))
	assert.Error(t, err)
}

func TestReadConfigLogModesExclusive(t *testing.T) {
	var _, err = ReadConfig(write_config(t, "log_dir: /tmp/a\nlog_file: /tmp/b.log\n"))
	assert.Error(t, err)
}

func TestReadConfigMissingFile(t *testing.T) {
	var _, err = ReadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReadConfigBadYAML(t *testing.T) {
	var _, err = ReadConfig(write_config(t, "port: [unterminated\n"))
	assert.Error(t, err)
}
