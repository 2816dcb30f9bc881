// Package config loads chatdb settings from defaults, an optional INI file
// and CHATDB_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/inovacc/chatdb/internal/application"
	"github.com/inovacc/chatdb/internal/kv"
	"gopkg.in/ini.v1"
)

// EnvConfigFile names the variable that overrides the INI file location.
const EnvConfigFile = application.EnvPrefix + "CONFIG"

// Default database settings.
const (
	DefaultDatabase = "chat.db"
	DefaultVersion  = 1
)

type StorageConfig struct {
	DataDir string `ini:"data_dir" env:"DATA_DIR"`
	Backend string `ini:"backend" env:"BACKEND"`
}

type DatabaseConfig struct {
	Name    string `ini:"name" env:"NAME"`
	Version uint64 `ini:"version" env:"VERSION"`
}

type LogConfig struct {
	Level  string `ini:"level" env:"LEVEL"`
	Format string `ini:"format" env:"FORMAT"`
	File   string `ini:"file" env:"FILE"`
}

// Config is the resolved application configuration.
type Config struct {
	Storage  StorageConfig  `ini:"storage" envPrefix:"STORAGE_"`
	Database DatabaseConfig `ini:"database" envPrefix:"DB_"`
	Log      LogConfig      `ini:"log" envPrefix:"LOG_"`

	// Source is the INI file that was read, empty when none was found.
	Source string `ini:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir, err := application.GetDataDirectory()
	if err != nil {
		dataDir = application.AppName
	}

	return &Config{
		Storage:  StorageConfig{DataDir: dataDir, Backend: kv.DriverBolt},
		Database: DatabaseConfig{Name: DefaultDatabase, Version: DefaultVersion},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load resolves the configuration. path selects the INI file; when empty,
// $CHATDB_CONFIG and then <app dir>/config.ini are tried. A missing file is
// not an error unless path was given explicitly.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// load is Load with an explicit environment; nil means the process environment.
func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	explicit := path != ""

	if !explicit {
		path = lookup(environ, EnvConfigFile)
		explicit = path != ""
	}

	if !explicit {
		if p, err := application.GetConfigFile(); err == nil {
			path = p
		}
	}

	if path != "" {
		if err := cfg.readINI(path); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				path = ""
			} else {
				return nil, err
			}
		}

		cfg.Source = path
	}

	opts := env.Options{Prefix: application.EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) readINI(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if err := file.Section("storage").MapTo(&c.Storage); err != nil {
		return fmt.Errorf("section storage: %w", err)
	}

	if err := file.Section("database").MapTo(&c.Database); err != nil {
		return fmt.Errorf("section database: %w", err)
	}

	if err := file.Section("log").MapTo(&c.Log); err != nil {
		return fmt.Errorf("section log: %w", err)
	}

	return nil
}

// Validate checks the values that cannot be repaired later.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case kv.DriverBolt, kv.DriverSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q (want %s or %s)", c.Storage.Backend, kv.DriverBolt, kv.DriverSQLite)
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage data_dir is empty")
	}

	if strings.TrimSpace(c.Database.Name) == "" {
		return errors.New("database name is empty")
	}

	return nil
}

// Save writes the configuration as INI.
func (c *Config) Save(path string) error {
	file := ini.Empty()

	if err := file.Section("storage").ReflectFrom(&c.Storage); err != nil {
		return err
	}

	if err := file.Section("database").ReflectFrom(&c.Database); err != nil {
		return err
	}

	if err := file.Section("log").ReflectFrom(&c.Log); err != nil {
		return err
	}

	return file.SaveTo(path)
}

func lookup(environ map[string]string, key string) string {
	if environ == nil {
		return os.Getenv(key)
	}

	return environ[key]
}
