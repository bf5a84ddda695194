package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/spf13/viper"
)

// ThresholdLoader re-reads the attention thresholds from the config file on
// every call, so edits apply from the next evaluation without a restart.
type ThresholdLoader struct {
	path     string
	defaults kpi.ThresholdConfig
}

// NewThresholdLoader creates a loader for the `thresholds` section of path.
// Keys missing from the file keep their value from defaults. An empty path
// always yields defaults.
func NewThresholdLoader(path string, defaults kpi.ThresholdConfig) *ThresholdLoader {
	return &ThresholdLoader{path: path, defaults: defaults}
}

// Load returns a fresh ThresholdConfig value. A config file that disappeared
// falls back to the defaults; an unreadable or invalid one is an error.
func (l *ThresholdLoader) Load() (kpi.ThresholdConfig, error) {
	th := l.defaults
	if l.path == "" {
		return th, nil
	}

	v := viper.New()
	v.SetConfigFile(l.path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return th, nil
		}
		return kpi.ThresholdConfig{}, fmt.Errorf("reading thresholds from %s: %w", l.path, err)
	}

	if v.IsSet("thresholds") {
		if err := v.UnmarshalKey("thresholds", &th); err != nil {
			return kpi.ThresholdConfig{}, fmt.Errorf("parsing thresholds from %s: %w", l.path, err)
		}
	}
	if err := ValidateThresholds(th); err != nil {
		return kpi.ThresholdConfig{}, fmt.Errorf("thresholds in %s: %w", l.path, err)
	}
	return th, nil
}
