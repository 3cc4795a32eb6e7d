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

	"github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/infra/mqtt"
)

// Config is the root configuration of the fieldops service.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Optimizer     OptimizerConfig     `json:"optimizer"`
	Travel        TravelConfig        `json:"travel"`
	Weather       WeatherConfig       `json:"weather"`
	Location      LocationConfig      `json:"location"`
	RunStore      RunStoreConfig      `json:"runstore"`
	MQTT          mqtt.Config         `json:"mqtt"`
	Metrics       metrics.Config      `json:"metrics"`
	Observability ObservabilityConfig `json:"observability"`
	Logging       LoggingConfig       `json:"logging"`
	Sentry        SentryConfig        `json:"sentry"`
}

// Load reads the file at path, YAML or JSON by extension, applies
// environment overrides, then section defaults and validation.
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
	// FIELDOPS_SERVER__ADDR overrides server.addr, and so on.
	if err := k.Load(env.Provider("FIELDOPS_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fieldops_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Server.SetDefaults()
	cfg.RunStore.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Weather.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RunStore.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
