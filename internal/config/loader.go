package config

import (
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// Load reads a configuration file (YAML, JSON or JSON5 by extension),
// expands ${ENV} references, and overlays it on the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Config("read config file %s", path).Wrap(err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(expanded, cfg); err != nil {
			return nil, errdefs.Config("parse config file %s", path).Wrap(err)
		}
	default:
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, errdefs.Config("parse config file %s", path).Wrap(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
