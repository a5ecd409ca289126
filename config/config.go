// Package config centralises runtime configuration helpers for statekit
// binaries: which storage backend to target and how envelopes are keyed.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Driver identifies a storage backend driver.
type Driver string

const (
	// DriverMemory is the in-memory backend.
	DriverMemory Driver = "memory"
	// DriverFilesystem is the file-per-key backend.
	DriverFilesystem Driver = "filesystem"
	// DriverSQLite is the embedded SQLite backend.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres is the PostgreSQL backend.
	DriverPostgres Driver = "postgres"
)

// StorageSettings selects and parameterises the storage backend.
type StorageSettings struct {
	Driver Driver `yaml:"driver"`
	// Root is the directory used by the filesystem driver.
	Root string `yaml:"root"`
	// Path is the database file used by the sqlite driver.
	Path string `yaml:"path"`
	// DSN is the connection string used by the postgres driver.
	DSN string `yaml:"dsn"`
}

// PersistenceSettings carries the envelope key and schema version binaries
// operate on.
type PersistenceSettings struct {
	Key     string `yaml:"key"`
	Version int    `yaml:"version"`
}

// TelemetrySettings configures metric export for statekit binaries. An empty
// endpoint disables export.
type TelemetrySettings struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Settings contains the statekit configuration tree loaded from defaults,
// an optional YAML file, and environment overrides.
type Settings struct {
	Storage     StorageSettings     `yaml:"storage"`
	Persistence PersistenceSettings `yaml:"persistence"`
	Telemetry   TelemetrySettings   `yaml:"telemetry"`
}

// Default returns the default statekit configuration.
func Default() Settings {
	return Settings{
		Storage: StorageSettings{
			Driver: DriverMemory,
			Root:   "",
			Path:   "",
			DSN:    "",
		},
		Persistence: PersistenceSettings{
			Key:     "statekit",
			Version: 0,
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint: "",
			ServiceName:  "statekit",
		},
	}
}

// Load reads a YAML settings file over the defaults. An empty path returns
// the defaults untouched.
func Load(path string) (Settings, error) {
	cfg := Default()
	clean := strings.TrimSpace(path)
	if clean == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}
	return cfg, nil
}

// FromEnv applies environment variable overrides to the provided settings.
func FromEnv(cfg Settings) Settings {
	if v := strings.TrimSpace(os.Getenv("STATEKIT_STORAGE_DRIVER")); v != "" {
		cfg.Storage.Driver = Driver(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("STATEKIT_STORAGE_ROOT")); v != "" {
		cfg.Storage.Root = v
	}
	if v := strings.TrimSpace(os.Getenv("STATEKIT_STORAGE_PATH")); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("STATEKIT_STORAGE_DSN")); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("STATEKIT_KEY")); v != "" {
		cfg.Persistence.Key = v
	}
	if v := strings.TrimSpace(os.Getenv("STATEKIT_VERSION")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Persistence.Version = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("STATEKIT_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("STATEKIT_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}

// Validate checks that the selected driver carries the parameters it needs.
func (s Settings) Validate() error {
	switch s.Storage.Driver {
	case DriverMemory:
	case DriverFilesystem:
		if strings.TrimSpace(s.Storage.Root) == "" {
			return errors.New("filesystem driver requires storage.root")
		}
	case DriverSQLite:
		if strings.TrimSpace(s.Storage.Path) == "" {
			return errors.New("sqlite driver requires storage.path")
		}
	case DriverPostgres:
		if strings.TrimSpace(s.Storage.DSN) == "" {
			return errors.New("postgres driver requires storage.dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", s.Storage.Driver)
	}
	if strings.TrimSpace(s.Persistence.Key) == "" {
		return errors.New("persistence.key required")
	}
	return nil
}
