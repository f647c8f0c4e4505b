package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// StatsBackend selects the statistics collector implementation.
type StatsBackend string

const (
	StatsBackendDummy    StatsBackend = "dummy"
	StatsBackendMemory   StatsBackend = "memory"
	StatsBackendSQLite   StatsBackend = "sqlite"
	StatsBackendPostgres StatsBackend = "postgres"
)

// ListenConfig defines where the proxy accepts client connections.
type ListenConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// InterfaceConfig names one local IPv4 source address to balance across.
type InterfaceConfig struct {
	Name string `json:"name" yaml:"name"`
	IP   string `json:"ip" yaml:"ip"`
}

// StatisticsConfig defines settings for the statistics collector.
type StatisticsConfig struct {
	Enabled     bool         `json:"enabled" yaml:"enabled"`
	Backend     StatsBackend `json:"backend" yaml:"backend"`
	SQLitePath  string       `json:"sqlite-path" yaml:"sqlite-path"`
	PostgresDSN string       `json:"postgres-dsn" yaml:"postgres-dsn"`
}

// Config represents the main configuration structure for the proxy server.
type Config struct {
	Listen                   ListenConfig      `json:"listen" yaml:"listen"`
	Interfaces               []InterfaceConfig `json:"interfaces" yaml:"interfaces"`
	MaxConcurrentConnections int               `json:"max-concurrent-connections" yaml:"max-concurrent-connections"`
	LogLevel                 string            `json:"log-level" yaml:"log-level"`
	LogDir                   string            `json:"log-dir" yaml:"log-dir"`
	Statistics               StatisticsConfig  `json:"statistics" yaml:"statistics"`
}

// ListenAddress returns the host:port the proxy listens on.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Listen.Host, c.Listen.Port)
}

// LoadConfig loads configuration from the specified file path. Defaults are
// applied first, then environment variables, then the file (if given).
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		Listen: ListenConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		MaxConcurrentConnections: 100,
		LogLevel:                 "INFO",
		Statistics: StatisticsConfig{
			Enabled: true,
			Backend: StatsBackendMemory,
		},
	}

	loadConfigFromEnv(cfg)

	if configPath != "" {
		var err error

		ext := filepath.Ext(configPath)
		switch strings.ToLower(ext) {
		case ".json":
			err = loadJSONConfig(configPath, cfg)
		case ".yaml", ".yml":
			err = loadYAMLConfig(configPath, cfg)
		default:
			return nil, fmt.Errorf("unsupported config file format: %s", ext)
		}

		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration constraints.
func (c *Config) Validate() error {
	if c.Listen.Port < 1024 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen port must be between 1024 and 65535, got %d", c.Listen.Port)
	}
	if c.MaxConcurrentConnections <= 0 {
		return fmt.Errorf("max-concurrent-connections must be positive, got %d", c.MaxConcurrentConnections)
	}
	if len(c.Interfaces) > 2 {
		return fmt.Errorf("at most 2 interfaces may be configured, got %d", len(c.Interfaces))
	}
	for i, iface := range c.Interfaces {
		if iface.IP == "" {
			return fmt.Errorf("interface at index %d has no IP", i)
		}
	}
	switch c.Statistics.Backend {
	case StatsBackendDummy, StatsBackendMemory, StatsBackendSQLite, StatsBackendPostgres, "":
	default:
		return fmt.Errorf("unknown statistics backend: %s", c.Statistics.Backend)
	}
	if c.Statistics.Backend == StatsBackendSQLite && c.Statistics.SQLitePath == "" {
		return fmt.Errorf("statistics backend sqlite requires sqlite-path")
	}
	if c.Statistics.Backend == StatsBackendPostgres && c.Statistics.PostgresDSN == "" {
		return fmt.Errorf("statistics backend postgres requires postgres-dsn")
	}
	return nil
}

func cleanAbsPath(path string) (string, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return "", fmt.Errorf("invalid config file path: %w", err)
		}
		cleanPath = absPath
	}
	return cleanPath, nil
}

func loadJSONConfig(configPath string, cfg *Config) error {
	cleanPath, err := cleanAbsPath(configPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON config: %w", err)
	}
	return nil
}

func loadYAMLConfig(configPath string, cfg *Config) error {
	cleanPath, err := cleanAbsPath(configPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML config: %w", err)
	}
	return nil
}

// loadConfigFromEnv applies LINKMUX_* environment overrides.
func loadConfigFromEnv(cfg *Config) {
	if v := os.Getenv("LINKMUX_LISTEN_HOST"); v != "" {
		cfg.Listen.Host = v
	}
	if v := os.Getenv("LINKMUX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Listen.Port = port
		}
	}
	if v := os.Getenv("LINKMUX_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentConnections = n
		}
	}
	if v := os.Getenv("LINKMUX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LINKMUX_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("LINKMUX_STATS_BACKEND"); v != "" {
		cfg.Statistics.Enabled = true
		cfg.Statistics.Backend = StatsBackend(strings.ToLower(v))
	}
	if v := os.Getenv("LINKMUX_STATS_SQLITE_PATH"); v != "" {
		cfg.Statistics.SQLitePath = v
	}
	if v := os.Getenv("LINKMUX_STATS_POSTGRES_DSN"); v != "" {
		cfg.Statistics.PostgresDSN = v
	}
	if v := os.Getenv("LINKMUX_INTERFACES"); v != "" {
		ifaces := parseInterfacesEnv(v)
		if len(ifaces) > 0 {
			cfg.Interfaces = ifaces
		}
	}
}

// parseInterfacesEnv parses "name=ip,name=ip" (or bare "ip,ip") pairs.
func parseInterfacesEnv(s string) []InterfaceConfig {
	var out []InterfaceConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, ip, found := strings.Cut(part, "=")
		if !found {
			ip = name
			name = ""
		}
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		out = append(out, InterfaceConfig{Name: strings.TrimSpace(name), IP: ip})
	}
	return out
}
