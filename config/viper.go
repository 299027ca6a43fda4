package config

import (
	"github.com/spf13/viper"
)

// LoadViper reads the same YAML document as LoadFile but through a
// per-call viper.New() instance, grounded on
// internal/labelmutex/policy.go's ParseMutexGroups: a library must
// never register a config file against viper's process-wide
// singleton, since two Stores in the same process would then fight
// over the same global state.
func LoadViper(path string) (StoreConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
