package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/JAssertz/better-convex-sub001/pkg"
)

type RootUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	Port            int      `yaml:"port"`
	DataDir         string   `yaml:"data_dir"`
	InMem           bool     `yaml:"in_mem"`
	WriteIntervalMs int      `yaml:"write_interval_ms"`
	LogLevel        string   `yaml:"log_level"`
	Root            RootUser `yaml:"root"`
}

func Default() *Config {
	return &Config{
		Port:            7085,
		DataDir:         "./data",
		WriteIntervalMs: 1000,
		LogLevel:        "err_only",
	}
}

// Load reads the optional yaml file at path, then applies BCDB_* env
// overrides on top. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		} else if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port, ok := os.LookupEnv("BCDB_PORT"); ok {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return errors.Wrap(err, "invalid BCDB_PORT")
		}
		c.Port = parsed
	}
	if dir, ok := os.LookupEnv("BCDB_DATA_DIR"); ok {
		c.DataDir = dir
	}
	if in_mem, ok := os.LookupEnv("BCDB_IN_MEM"); ok {
		parsed, err := strconv.ParseBool(in_mem)
		if err != nil {
			return errors.Wrap(err, "invalid BCDB_IN_MEM")
		}
		c.InMem = parsed
	}
	if interval, ok := os.LookupEnv("BCDB_WRITE_INTERVAL_MS"); ok {
		parsed, err := strconv.Atoi(interval)
		if err != nil {
			return errors.Wrap(err, "invalid BCDB_WRITE_INTERVAL_MS")
		}
		c.WriteIntervalMs = parsed
	}
	if level, ok := os.LookupEnv("BCDB_LOG_LEVEL"); ok {
		c.LogLevel = level
	}
	if username, ok := os.LookupEnv("BCDB_ROOT_USERNAME"); ok {
		c.Root.Username = username
	}
	if password, ok := os.LookupEnv("BCDB_ROOT_PASSWORD"); ok {
		c.Root.Password = password
	}
	return nil
}

// ParsedLogLevel maps the configured name onto a logger level, defaulting
// to errors only.
func (c *Config) ParsedLogLevel() pkg.LogLevel {
	switch c.LogLevel {
	case "none":
		return pkg.LogLevelNone
	case "debug":
		return pkg.LogLevelDebug
	default:
		return pkg.LogLevelErrOnly
	}
}
