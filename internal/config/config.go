package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/michaelbrown/pyexec/internal/executor"
	"github.com/michaelbrown/pyexec/internal/sandbox"
)

type ServerConfig struct {
	Port         int   `mapstructure:"port"`
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type SandboxConfig struct {
	NsjailPath          string `mapstructure:"nsjail_path"`
	IsolationConfigPath string `mapstructure:"isolation_config_path"`
	InterpreterPath     string `mapstructure:"interpreter_path"`
	RunnerPath          string `mapstructure:"runner_path"`
	InstallRunner       bool   `mapstructure:"install_runner"`
}

type StagingConfig struct {
	Root string `mapstructure:"root"`
}

type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Staging StagingConfig `mapstructure:"staging"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// Load reads pyexec.yaml from path, or from the default search locations
// when path is empty. A missing file is not an error; every key has a
// default and can be overridden by PYEXEC_<SECTION>_<KEY> variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pyexec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pyexec")
		v.AddConfigPath("/etc/pyexec")
	}

	v.SetEnvPrefix("pyexec")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("sandbox.nsjail_path", "nsjail")
	v.SetDefault("sandbox.isolation_config_path", "/etc/nsjail.cfg")
	v.SetDefault("sandbox.interpreter_path", "/usr/local/bin/python3")
	v.SetDefault("sandbox.runner_path", "/app/executor.py")
	v.SetDefault("sandbox.install_runner", true)
	v.SetDefault("staging.root", "/sandbox")
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".pyexec", "pyexec.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	for key, val := range map[string]string{
		"sandbox.isolation_config_path": c.Sandbox.IsolationConfigPath,
		"sandbox.interpreter_path":      c.Sandbox.InterpreterPath,
		"sandbox.runner_path":           c.Sandbox.RunnerPath,
		"staging.root":                  c.Staging.Root,
	} {
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path must be set when storage is enabled")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Executor returns the pipeline configuration.
func (c *Config) Executor() executor.Config {
	return executor.Config{
		IsolationConfigPath: c.Sandbox.IsolationConfigPath,
		InterpreterPath:     c.Sandbox.InterpreterPath,
		StagingRoot:         c.Staging.Root,
		RunnerPath:          c.Sandbox.RunnerPath,
		NsjailPath:          c.Sandbox.NsjailPath,
	}
}

// SandboxConfig returns the sandbox configuration used for pre-flight checks.
func (c *Config) SandboxConfig() sandbox.Config {
	return sandbox.Config{
		NsjailPath:          c.Sandbox.NsjailPath,
		IsolationConfigPath: c.Sandbox.IsolationConfigPath,
		InterpreterPath:     c.Sandbox.InterpreterPath,
		RunnerPath:          c.Sandbox.RunnerPath,
	}
}
