// Package config loads the optional YAML file backing the crawler
// command's flags; the pagerank command takes no config file. Flags set
// on the command line always win over the file; file
// values win over the built-in defaults, the same zero-value-falls-back-
// to-constant pattern every Config struct in this module uses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of ambient knobs a crawl run can be tuned with. Every field is optional; a zero value means "use the
// documented default" at the point it's consumed.
type Config struct {
	MaxInFlightHint  int           `yaml:"max_inflight_hint"`
	GlobalFilterBits uint32        `yaml:"global_filter_bits"`
	PageFilterBits   uint32        `yaml:"page_filter_bits"`
	ConnTimeout      time.Duration `yaml:"conn_timeout"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
	LogLevel         string        `yaml:"log_level"`
	S3Output         string        `yaml:"s3_output"`
}

// Load reads and parses a YAML config file. An empty path returns a zero
// Config with no error — every caller applies its own defaults on top.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
