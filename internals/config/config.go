package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Miner  MinerConfig  `yaml:"miner"`
	Server ServerConfig `yaml:"server"`
	Pebble PebbleConfig `yaml:"pebble"`
	Log    LogConfig    `yaml:"log"`
}

type MinerConfig struct {
	Address    string        `yaml:"address"`
	Difficulty uint32        `yaml:"difficulty"`
	Reward     float64       `yaml:"reward"`
	Threads    int           `yaml:"threads"`
	MaxNonce   uint64        `yaml:"max_nonce"` // 0 searches the full range
	Interval   time.Duration `yaml:"interval"`  // 0 disables the mining loop
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type PebbleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

func New() *Config {
	return &Config{
		Miner: MinerConfig{
			Difficulty: 2,
			Reward:     100,
			Threads:    1,
			Interval:   10 * time.Second,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		Pebble: PebbleConfig{
			Enabled: true,
			Path:    "./data/pebble",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfiguration reads file over the defaults, applies POWLEDGER_*
// environment overrides and validates the result. A missing file is not an
// error.
func LoadConfiguration(file string) (Config, error) {
	config := *New()
	if file != "" {
		data, err := os.ReadFile(file)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				logrus.WithField("file", file).Error("Error parsing configfile")
				return config, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !os.IsNotExist(err):
			return config, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config.loadEnv()

	if config.Miner.Address == "" {
		u, err := uuid.NewV4()
		if err != nil {
			return config, fmt.Errorf("generate miner address: %w", err)
		}
		config.Miner.Address = u.String()
	}

	return config, config.Validate()
}

func (c *Config) loadEnv() {
	if v := os.Getenv("POWLEDGER_MINER_ADDRESS"); v != "" {
		c.Miner.Address = v
	}
	if v := os.Getenv("POWLEDGER_MINER_DIFFICULTY"); v != "" {
		if d, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Miner.Difficulty = uint32(d)
		}
	}
	if v := os.Getenv("POWLEDGER_MINER_REWARD"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			c.Miner.Reward = r
		}
	}
	if v := os.Getenv("POWLEDGER_MINER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Miner.Threads = n
		}
	}
	if v := os.Getenv("POWLEDGER_MINER_MAX_NONCE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Miner.MaxNonce = n
		}
	}
	if v := os.Getenv("POWLEDGER_MINER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Miner.Interval = d
		}
	}
	if v := os.Getenv("POWLEDGER_SERVER_ENABLED"); v != "" {
		c.Server.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("POWLEDGER_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("POWLEDGER_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("POWLEDGER_PEBBLE_ENABLED"); v != "" {
		c.Pebble.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("POWLEDGER_PEBBLE_PATH"); v != "" {
		c.Pebble.Path = v
	}
	if v := os.Getenv("POWLEDGER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("POWLEDGER_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Miner.Threads < 1 {
		return fmt.Errorf("miner.threads must be >= 1, got %d", c.Miner.Threads)
	}
	if c.Miner.Interval < 0 {
		return fmt.Errorf("miner.interval must not be negative, got %s", c.Miner.Interval)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Pebble.Enabled && c.Pebble.Path == "" {
		return errors.New("pebble.path must not be empty when pebble.enabled=true")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	return nil
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(level)
	}
	if strings.ToLower(c.Log.Format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}
