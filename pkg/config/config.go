package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseCommandFlags centralizes flag parsing for the gramsync binary.
// It returns the raw values plus a set of flags the user explicitly set,
// so explicit flags can win over env and file values.
func ParseCommandFlags() (host, db, cfgPath string, setFlags map[string]bool) {
	hostF := flag.String("host", "", "API host (e.g. 192.168.1.20 or https://api.example.com)")
	dbF := flag.String("db", "./data/gramsync", "path to local durable store")
	cfgF := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *hostF, *dbF, *cfgF, setFlags
}

// ResolveConfigPath picks the config file path: explicit flag wins over
// the GRAMSYNC_CONFIG env var.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && strings.TrimSpace(flagVal) != "" {
		return flagVal
	}
	if v := strings.TrimSpace(os.Getenv("GRAMSYNC_CONFIG")); v != "" {
		return v
	}
	return flagVal
}

// Load reads the yaml config file (if present) and applies GRAMSYNC_* env
// overrides on top. A missing file is not an error; env alone is a valid
// configuration source.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GRAMSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAMSYNC_API_PREFIX"); v != "" {
		cfg.API.Prefix = v
	}
	if v := os.Getenv("GRAMSYNC_ENV"); v != "" {
		cfg.API.Environment = v
	}
	if v := os.Getenv("GRAMSYNC_LOCALE"); v != "" {
		cfg.API.Locale = v
	}
	if v := os.Getenv("GRAMSYNC_API_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.API.TimeoutMS = n
		}
	}
	if v := os.Getenv("GRAMSYNC_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("GRAMSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GRAMSYNC_REFRESH_CRON"); v != "" {
		cfg.Refresh.Cron = v
		cfg.Refresh.Enabled = true
	}
	if v := os.Getenv("GRAMSYNC_DEBUG_ADDR"); v != "" {
		cfg.Debug.Addr = v
	}
}

// Environment returns the configured environment name, defaulting to
// "development" like the mobile build config.
func (c *Config) Environment() string {
	if e := strings.TrimSpace(c.API.Environment); e != "" {
		return e
	}
	return "development"
}

// IsDev reports whether the client runs against a development backend.
func (c *Config) IsDev() bool { return c.Environment() == "development" }
