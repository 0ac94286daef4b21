// Package config loads the service configuration from a yaml or json file
// with optional environment variable overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/agrilink/fulfillment/core/allocation"
	coremetrics "github.com/agrilink/fulfillment/core/metrics"
	"github.com/agrilink/fulfillment/infra/notify"
)

type Config struct {
	HTTP       HTTPConfig         `json:"http"`
	Storage    StorageConfig      `json:"storage"`
	Notifier   notify.Config      `json:"notifier"`
	Metrics    coremetrics.Config `json:"metrics"`
	Allocation allocation.Config  `json:"allocation"`
	Match      MatchConfig        `json:"match"`
}

// Load reads the configuration file and applies FUL_ environment overrides,
// e.g. FUL_STORAGE__BACKEND=sqlite.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("FUL_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ful_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.HTTP.SetDefaults()
	cfg.Storage.SetDefaults()
	cfg.Allocation.SetDefaults()
	cfg.Match.SetDefaults()
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Match.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
