package configs

import (
	"flag"
	"os"

	"github.com/chatwire/livechat/internal/infrastructure/env"
)

// DetermineConfigPath resolves an optional config file. An empty return value
// is valid: Load falls back to defaults and environment overrides.
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("LIVECHAT_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"/etc/livechat/config.yaml",
			"/app/config.yaml",
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
