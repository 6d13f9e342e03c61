package ignore

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the ignore-pattern list.
//
// Example:
//
//	ignore_patterns:
//	  - event_type: AuthenticationSuccess
//	    user_pattern: "svc-*"
type FileConfig struct {
	IgnorePatterns []Rule `yaml:"ignore_patterns"`
}

// LoadConfig loads the ignore-pattern list from path. A missing or
// unparseable file degrades gracefully to an empty rule set rather than
// failing construction: ignore patterns are an optional allow-list, not a
// required input.
func LoadConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{IgnorePatterns: []Rule{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("ignore pattern config not found, continuing without patterns", "path", path)

			return cfg, nil
		}

		slog.Warn("failed to read ignore pattern config, continuing without patterns", "path", path, "error", err)

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("failed to parse ignore pattern config, continuing without patterns", "path", path, "error", err)

		return &FileConfig{IgnorePatterns: []Rule{}}, nil
	}

	if cfg.IgnorePatterns == nil {
		cfg.IgnorePatterns = []Rule{}
	}

	return cfg, nil
}
