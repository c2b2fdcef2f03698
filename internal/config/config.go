package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"secure-shred/internal/shred"
)

// DefaultPath is read when no --config flag is given; its absence is not an error
const DefaultPath = "/etc/secure-shred/config.yaml"

// Special file policies
const (
	SpecialReject = "reject"
	SpecialUnlink = "unlink"
)

const MaxWorkers = 16

type ShredCfg struct {
	Passes       int     `yaml:"passes" json:"passes"`                 // Overwrite passes per file (1..35)
	BlockSize    int     `yaml:"block_size" json:"block_size"`         // Chunk size in bytes
	SpecialFiles string  `yaml:"special_files" json:"special_files"`   // reject or unlink
	MaxSpeedMBps float64 `yaml:"max_speed_mbps" json:"max_speed_mbps"` // Write throttle, 0 = unlimited
	Workers      int     `yaml:"workers" json:"workers"`               // Operands processed concurrently
}

type SafetyCfg struct {
	AllowedRoots   []string `yaml:"allowed_roots" json:"allowed_roots"`
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"`
	NFSTimeout     int      `yaml:"nfs_timeout_seconds" json:"nfs_timeout_seconds"` // Stale mount probe timeout
}

type LoggingCfg struct {
	Level        string `yaml:"level" json:"level"`
	File         string `yaml:"file" json:"file"`                   // Optional JSON log file
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type AuditCfg struct {
	DatabasePath string `yaml:"database_path" json:"database_path"` // Empty disables the ledger
	RecordPaths  bool   `yaml:"record_paths" json:"record_paths"`   // Store plain paths next to digests
}

type MetricsCfg struct {
	Textfile string `yaml:"textfile" json:"textfile"` // node_exporter textfile output
}

type Config struct {
	Shred   ShredCfg   `yaml:"shred" json:"shred"`
	Safety  SafetyCfg  `yaml:"safety" json:"safety"`
	Logging LoggingCfg `yaml:"logging" json:"logging"`
	Audit   AuditCfg   `yaml:"audit" json:"audit"`
	Metrics MetricsCfg `yaml:"metrics" json:"metrics"`
}

var (
	errInvalidPath    = errors.New("path must be absolute")
	errInvalidPasses  = fmt.Errorf("shred.passes must be between 1 and %d", shred.MaxPasses)
	errInvalidBlock   = fmt.Errorf("shred.block_size must be between %d and %d", shred.MinBlockSize, shred.MaxBlockSize)
	errInvalidWorkers = fmt.Errorf("shred.workers must be between 1 and %d", MaxWorkers)
	errInvalidSpecial = errors.New("shred.special_files must be reject or unlink")
	errNegativeSpeed  = errors.New("shred.max_speed_mbps cannot be negative")
	errInvalidLevel   = errors.New("logging.level must be debug, info, warn or error")
)

// Default returns a fully defaulted configuration
func Default() *Config {
	cfg := &Config{}
	// Defaults alone always validate
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but returns defaults when path does not exist
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		// An empty file is a valid, all-default config
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate re-checks the configuration after command-line overrides
func (c *Config) Validate() error {
	return c.validateAndDefault()
}

func (c *Config) validateAndDefault() error {
	if c.Shred.Passes == 0 {
		c.Shred.Passes = shred.DefaultPasses
	}
	if c.Shred.Passes < 1 || c.Shred.Passes > shred.MaxPasses {
		return fmt.Errorf("%w, got %d", errInvalidPasses, c.Shred.Passes)
	}

	if c.Shred.BlockSize == 0 {
		c.Shred.BlockSize = shred.DefaultBlockSize
	}
	if c.Shred.BlockSize < shred.MinBlockSize || c.Shred.BlockSize > shred.MaxBlockSize {
		return fmt.Errorf("%w, got %d", errInvalidBlock, c.Shred.BlockSize)
	}

	c.Shred.SpecialFiles = strings.ToLower(strings.TrimSpace(c.Shred.SpecialFiles))
	switch c.Shred.SpecialFiles {
	case "":
		c.Shred.SpecialFiles = SpecialReject
	case SpecialReject, SpecialUnlink:
	default:
		return fmt.Errorf("%w, got %q", errInvalidSpecial, c.Shred.SpecialFiles)
	}

	if c.Shred.MaxSpeedMBps < 0 {
		return errNegativeSpeed
	}

	if c.Shred.Workers == 0 {
		c.Shred.Workers = 1
	}
	if c.Shred.Workers < 1 || c.Shred.Workers > MaxWorkers {
		return fmt.Errorf("%w, got %d", errInvalidWorkers, c.Shred.Workers)
	}

	if c.Safety.NFSTimeout <= 0 {
		c.Safety.NFSTimeout = 5 // Default: 5 seconds timeout for NFS probes
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w, got %q", errInvalidLevel, c.Logging.Level)
	}
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	var err error
	if c.Safety.AllowedRoots, err = cleanAll(c.Safety.AllowedRoots); err != nil {
		return fmt.Errorf("safety.allowed_roots: %w", err)
	}
	if c.Safety.ProtectedPaths, err = cleanAll(c.Safety.ProtectedPaths); err != nil {
		return fmt.Errorf("safety.protected_paths: %w", err)
	}
	if c.Audit.DatabasePath, err = cleanOptional(c.Audit.DatabasePath); err != nil {
		return fmt.Errorf("audit.database_path: %w", err)
	}
	if c.Logging.File, err = cleanOptional(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	if c.Metrics.Textfile, err = cleanOptional(c.Metrics.Textfile); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}

	return nil
}

func cleanAll(paths []string) ([]string, error) {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, cp)
	}
	return cleaned, nil
}

func cleanOptional(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return cleanAbsolute(p)
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

// ToolPaths lists the files this tool itself writes; they are never valid targets
func (c *Config) ToolPaths() []string {
	var paths []string
	if c.Audit.DatabasePath != "" {
		db := c.Audit.DatabasePath
		paths = append(paths, db, db+"-wal", db+"-shm")
	}
	if c.Logging.File != "" {
		paths = append(paths, c.Logging.File)
	}
	if c.Metrics.Textfile != "" {
		paths = append(paths, c.Metrics.Textfile)
	}
	return paths
}

func (c *Config) NFSTimeoutDuration() time.Duration {
	return time.Duration(c.Safety.NFSTimeout) * time.Second
}
