package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Config is the main configuration struct.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Push    PushConfig    `yaml:"push"`
	Refresh RefreshConfig `yaml:"refresh"`
	Debug   DebugConfig   `yaml:"debug"`
}

// APIConfig describes how the outbound base address is assembled.
type APIConfig struct {
	Host        string `yaml:"host"`
	Prefix      string `yaml:"prefix"`
	Environment string `yaml:"environment"`
	Locale      string `yaml:"locale"`
	// TimeoutMS bounds every outbound request. Zero means the default 15s.
	TimeoutMS int `yaml:"timeout_ms"`
}

// StorageConfig holds the durable store settings.
type StorageConfig struct {
	Path string `yaml:"path"`
	// MaxCacheSize accepts humanize syntax ("64MB"). Zero means unbounded.
	MaxCacheSize string `yaml:"max_cache_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PushConfig holds push-channel settings.
type PushConfig struct {
	// Path of the websocket endpoint relative to the host.
	Path string `yaml:"path"`
}

// RefreshConfig holds the maintenance scheduler settings.
type RefreshConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// DebugConfig holds the local ops listener settings.
type DebugConfig struct {
	Addr string `yaml:"addr"`
}

const (
	defaultPort    = "8080"
	defaultPrefix  = "/api/v1"
	defaultWSPath  = "/ws/messages"
	defaultTimeout = 15 * time.Second
)

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	if c.API.TimeoutMS > 0 {
		return time.Duration(c.API.TimeoutMS) * time.Millisecond
	}
	return defaultTimeout
}

// MaxCacheBytes parses the configured cache size limit. Zero means no limit.
func (c *Config) MaxCacheBytes() (uint64, error) {
	raw := strings.TrimSpace(c.Storage.MaxCacheSize)
	if raw == "" {
		return 0, nil
	}
	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid max_cache_size %q: %w", raw, err)
	}
	return v, nil
}

// normalizeHost cleans the configured host: trailing slashes stripped, an
// http:// scheme added when missing, and bare IP/localhost hosts given the
// default port 8080.
func normalizeHost(host string) (string, error) {
	h := strings.TrimRight(strings.TrimSpace(host), "/")
	if h == "" {
		return "", fmt.Errorf("api host is empty")
	}
	if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
		h = "http://" + h
	}
	u, err := url.Parse(h)
	if err != nil {
		return "", fmt.Errorf("invalid api host %q: %w", host, err)
	}
	if u.Port() == "" {
		hn := u.Hostname()
		if hn == "localhost" || net.ParseIP(hn) != nil {
			u.Host = net.JoinHostPort(hn, defaultPort)
		}
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}

// BaseURL assembles the outbound request base: normalized host plus the
// path prefix, no trailing slash.
func (c *Config) BaseURL() (string, error) {
	base, err := normalizeHost(c.API.Host)
	if err != nil {
		return "", err
	}
	prefix := strings.TrimSpace(c.API.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return base + strings.TrimRight(prefix, "/"), nil
}

// WSURL derives the push-channel endpoint from the API host: ws for http
// bases, wss for https. The token is appended by the push engine, not here.
func (c *Config) WSURL() (string, error) {
	base, err := normalizeHost(c.API.Host)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	p := strings.TrimSpace(c.Push.Path)
	if p == "" {
		p = defaultWSPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.Path = p
	return u.String(), nil
}

// Locale returns the configured message locale, defaulting to English.
func (c *Config) Locale() string {
	l := strings.ToLower(strings.TrimSpace(c.API.Locale))
	if l == "" {
		return "en"
	}
	return l
}
