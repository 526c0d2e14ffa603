package main

import "github.com/littleos-dev/littleos/internal/config"

// loadConfig reads --config if set, otherwise returns the built-in
// defaults.
func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}
