package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays Config fields from environment variables using the `env`
// struct tags. Unset variables leave the existing (default) values in place.
func parseEnv(cfg *Config) {
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}
}
