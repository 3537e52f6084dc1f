package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Node configuration file.
 *
 * Description:	A small YAML file so a deployment can pin down the
 *		port, the sense line and the protocol knobs without
 *		recompiling or a wall of command line flags.  The
 *		port, log and time beacon flags still override; see
 *		cmd/wbtvnode.
 *
 *		Example:
 *
 *			port: /dev/ttyUSB0
 *			speed: 9600
 *			wired_or: true
 *			sense_chip: gpiochip0
 *			sense_line: 17
 *			sense_idle_high: true
 *			adv_mode: true
 *			time_beacon_seconds: 30
 *			log_dir: /var/log/wbtv
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port  string `yaml:"port"`
	Speed int    `yaml:"speed"`

	WiredOR       bool   `yaml:"wired_or"`
	SenseChip     string `yaml:"sense_chip"`
	SenseLine     int    `yaml:"sense_line"`
	SenseIdleHigh bool   `yaml:"sense_idle_high"`

	DummySTH bool `yaml:"dummy_sth"`
	HashSTX  bool `yaml:"hash_stx"`

	AdvMode           bool   `yaml:"adv_mode"`
	RecordTime        bool   `yaml:"record_time"`
	ErrorPerSecond    uint32 `yaml:"error_per_second"`
	TimeBeaconSeconds int    `yaml:"time_beacon_seconds"`

	MinBackoff uint32 `yaml:"min_backoff_us"`
	MaxBackoff uint32 `yaml:"max_backoff_us"`
	MaxWait    uint32 `yaml:"max_wait_ms"`

	/* Received frame logging.  Use one or the other but not both. */
	LogDir  string `yaml:"log_dir"`  /* daily file names created here */
	LogFile string `yaml:"log_file"` /* one fixed file */
}

func ReadConfig(path string) (*Config, error) {
	var raw, err = os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c = &Config{Speed: 9600}

	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}

	if c.WiredOR && c.SenseChip == "" {
		return nil, fmt.Errorf("%s: wired_or requires sense_chip/sense_line", path)
	}

	if c.LogDir != "" && c.LogFile != "" {
		return nil, fmt.Errorf("%s: log_dir and log_file are mutually exclusive", path)
	}

	return c, nil
}

// Options translates the file's protocol knobs into the node options
// struct, leaving zero values for fill_defaults to handle.
func (c *Config) Options() Options {
	return Options{
		DummySTH:       c.DummySTH,
		HashSTX:        c.HashSTX,
		AdvMode:        c.AdvMode,
		RecordTime:     c.RecordTime || c.AdvMode,
		ErrorPerSecond: c.ErrorPerSecond,
		MinBackoff:     c.MinBackoff,
		MaxBackoff:     c.MaxBackoff,
		MaxWait:        c.MaxWait,
	}
}
