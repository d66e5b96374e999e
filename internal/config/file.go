package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadFile reads path (YAML, JSON or TOML by extension) and returns a
// config where environment variables win over file values. Keys in the
// file use the env names in lower case, e.g. visa_user_id: ... An empty
// path means environment only.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return LoadFrom(ViperLookup(v)), nil
}

// ViperLookup resolves KEY from the environment first, then from v under
// the lower-cased key.
func ViperLookup(v *viper.Viper) func(string) string {
	return func(key string) string {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
		return strings.TrimSpace(v.GetString(strings.ToLower(key)))
	}
}
