package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"imagededup/imageprocessor"
	"imagededup/migration"
	"imagededup/signalhandler"
	"imagededup/utils"
)

// Config is the explicit configuration of one dedup run
type Config struct {
	// Root is the directory tree scanned for images
	Root string `yaml:"root"`

	// Destination receives the survivors after indexing
	Destination string `yaml:"destination"`

	// DatabasePath is the sqlite file holding the dedup index
	DatabasePath string `yaml:"database"`

	// Extensions are matched case-insensitively, without the leading dot
	Extensions []string `yaml:"extensions"`

	// Workers bounds decode/hash parallelism. 1 processes files serially.
	Workers int `yaml:"workers"`

	// Decoder selects the decode backend: "standard" or "opencv" (needs the opencv build tag)
	Decoder string `yaml:"decoder"`

	// HashSize is the side of the mean-hash grid; HashSize*HashSize must be a multiple of 64
	HashSize int `yaml:"hash_size"`

	// Collision decides what happens when a survivor's name is taken in Destination:
	// "rename", "overwrite" or "skip"
	Collision string `yaml:"collision"`

	// KeepCorrupt reports corrupt files without deleting them
	KeepCorrupt bool `yaml:"keep_corrupt"`

	// SkipMigration stops after the index is committed
	SkipMigration bool `yaml:"skip_migration"`

	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"logfile"`
	Verbose bool   `yaml:"verbose"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		DatabasePath: utils.GetDefaultDatabasePath(),
		Extensions:   []string{"jpg", "jpeg"},
		Workers:      signalhandler.GetOptimalProcs(),
		Decoder:      string(imageprocessor.BackendStandard),
		HashSize:     8,
		Collision:    string(migration.CollisionRename),
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Extensions = normalizeExtensions(cfg.Extensions)
	return nil
}

// ApplyEnv loads the given dotenv files (".env" when none are given, ignored
// if absent) and then overlays IMAGEDEDUP_* variables onto cfg.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}

	cfg.Root = getEnv("IMAGEDEDUP_ROOT", cfg.Root)
	cfg.Destination = getEnv("IMAGEDEDUP_DEST", cfg.Destination)
	cfg.DatabasePath = getEnv("IMAGEDEDUP_DB", cfg.DatabasePath)
	if exts := os.Getenv("IMAGEDEDUP_EXTENSIONS"); exts != "" {
		cfg.Extensions = utils.ParseExtensions(exts)
	}
	cfg.Collision = getEnv("IMAGEDEDUP_COLLISION", cfg.Collision)
	cfg.LogFile = getEnv("IMAGEDEDUP_LOGFILE", cfg.LogFile)
	cfg.Decoder = getEnv("IMAGEDEDUP_DECODER", cfg.Decoder)

	var err error
	if cfg.Workers, err = getEnvAsInt("IMAGEDEDUP_WORKERS", cfg.Workers); err != nil {
		return err
	}
	if cfg.HashSize, err = getEnvAsInt("IMAGEDEDUP_HASH_SIZE", cfg.HashSize); err != nil {
		return err
	}
	if cfg.KeepCorrupt, err = getEnvAsBool("IMAGEDEDUP_KEEP_CORRUPT", cfg.KeepCorrupt); err != nil {
		return err
	}
	if cfg.Debug, err = getEnvAsBool("IMAGEDEDUP_DEBUG", cfg.Debug); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration for a full run
func (c Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root folder is required")
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("cannot access root folder %s: %w", c.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path is not a directory: %s", c.Root)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one extension is required")
	}
	for _, ext := range c.Extensions {
		if !imageprocessor.IsSupportedExtension(ext) {
			return fmt.Errorf("unsupported extension %q (supported: %s)", ext, strings.Join(imageprocessor.SupportedExtensions(), ", "))
		}
	}
	if _, err := imageprocessor.ParseBackend(c.Decoder); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got %d)", c.Workers)
	}
	if c.HashSize < 8 || c.HashSize%8 != 0 {
		return fmt.Errorf("hash_size must be a positive multiple of 8 (got %d)", c.HashSize)
	}
	if !c.SkipMigration {
		if err := c.ValidateMigration(); err != nil {
			return err
		}
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// ValidateMigration checks only what survivor migration needs
func (c Config) ValidateMigration() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Destination == "" {
		return fmt.Errorf("destination folder is required")
	}
	if _, err := migration.ParseCollisionPolicy(c.Collision); err != nil {
		return err
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	return utils.ParseExtensions(strings.Join(exts, ","))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	return b, nil
}
