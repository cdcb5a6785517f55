package config

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"sigs.k8s.io/yaml"
)

// Environment variables required at process start. The key-value service
// is a managed dependency; running without it is not supported.
const (
	EnvKVURL           = "KV_REST_URL"
	EnvKVToken         = "KV_REST_TOKEN"
	EnvKVReadOnlyToken = "KV_REST_READONLY_TOKEN"
)

type Config struct {
	Host       string `json:"host"`       // The domain name of the server.
	ServerAddr string `json:"serverAddr"` // The address the server endpoint binds to.

	// DataDir holds the legacy JSON collections and the file audit trail.
	DataDir string `json:"dataDir"`

	Audit struct {
		RetentionDays int    `json:"retentionDays"` // Entries older than this are pruned.
		CleanupSpec   string `json:"cleanupSpec"`   // Cron spec for the retention job.
	} `json:"audit"`

	// KV is populated from the environment, never from the config file,
	// so tokens stay out of any checked-in YAML.
	KV struct {
		URL           string `json:"-"`
		Token         string `json:"-"`
		ReadOnlyToken string `json:"-"`
	} `json:"-"`
}

func IsDebugMode() bool {
	return gin.Mode() == gin.DebugMode
}

// Load reads the YAML config for the current gin mode, applies defaults
// and pulls the key-value credentials from the environment. Any missing
// credential is a startup failure.
func Load() (*Config, error) {
	config := &Config{}
	var configPath string
	if IsDebugMode() {
		if os.Getenv("SHOWCASE_DEBUG_CONFIG_PATH") != "" {
			configPath = os.Getenv("SHOWCASE_DEBUG_CONFIG_PATH")
		} else {
			configPath = "./etc/debug-config.yaml"
		}
	} else {
		configPath = "/etc/config/config.yaml"
	}

	if raw, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	if config.ServerAddr == "" {
		config.ServerAddr = ":8092"
	}
	if config.DataDir == "" {
		config.DataDir = "./data"
	}
	if config.Audit.RetentionDays == 0 {
		config.Audit.RetentionDays = 90
	}
	if config.Audit.CleanupSpec == "" {
		config.Audit.CleanupSpec = "0 3 * * *"
	}

	config.KV.URL = os.Getenv(EnvKVURL)
	config.KV.Token = os.Getenv(EnvKVToken)
	config.KV.ReadOnlyToken = os.Getenv(EnvKVReadOnlyToken)
	if config.KV.URL == "" || config.KV.Token == "" || config.KV.ReadOnlyToken == "" {
		return nil, fmt.Errorf("%s, %s and %s must all be set", EnvKVURL, EnvKVToken, EnvKVReadOnlyToken)
	}
	return config, nil
}
