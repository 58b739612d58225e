package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DonorListFile is the donor list read from the work dir by default.
const DonorListFile = "donors.tsv"

// Config represents the application configuration
type Config struct {
	WorkDir         string        `yaml:"work_dir"`
	UploadDir       string        `yaml:"upload_dir"`
	LedgerPath      string        `yaml:"ledger_path"`
	PolicyFile      string        `yaml:"policy_file"`
	ReposFile       string        `yaml:"repos_file"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	VerifyChecksums bool          `yaml:"verify_checksums"`
	Output          string        `yaml:"output"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables (GNOSMERGE_*)
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/gnosmerge/config.yaml (YAML)
// 4. Built-in defaults
func Load() (*Config, error) {
	cfg := &Config{
		WorkDir:      ".",
		FetchTimeout: 30 * time.Second,
		LogLevel:     "info",
		LogFormat:    "auto",
		Output:       "table",
	}

	// Load .env.local if it exists (walking up parent directories).
	// godotenv never overrides variables already set in the environment.
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional, but a broken one is an error
	if err := loadYAMLConfig(cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.LedgerPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.LedgerPath = filepath.Join(homeDir, ".local", "share", "gnosmerge", "ledger.db")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("GNOSMERGE_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("GNOSMERGE_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := getEnvOrFile("GNOSMERGE_LEDGER_PATH", "GNOSMERGE_LEDGER_PATH_FILE"); v != "" {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("GNOSMERGE_POLICY_FILE"); v != "" {
		cfg.PolicyFile = v
	}
	if v := os.Getenv("GNOSMERGE_REPOS_FILE"); v != "" {
		cfg.ReposFile = v
	}
	if v := os.Getenv("GNOSMERGE_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GNOSMERGE_FETCH_TIMEOUT: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if v := os.Getenv("GNOSMERGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GNOSMERGE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("GNOSMERGE_VERIFY_CHECKSUMS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GNOSMERGE_VERIFY_CHECKSUMS: %w", err)
		}
		cfg.VerifyChecksums = b
	}
	if v := os.Getenv("GNOSMERGE_OUTPUT"); v != "" {
		cfg.Output = v
	}
	return nil
}

// UploadRoot returns the directory merged records are written under:
// upload_dir when set, else <work_dir>/upload.
func (c *Config) UploadRoot() string {
	if c.UploadDir != "" {
		return c.UploadDir
	}
	return filepath.Join(c.WorkDir, "upload")
}

// DonorList returns the default donor list location.
func (c *Config) DonorList() string {
	return filepath.Join(c.WorkDir, DonorListFile)
}

// Path returns the location of the YAML config file.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "gnosmerge", "config.yaml"), nil
}

// loadYAMLConfig loads configuration from ~/.config/gnosmerge/config.yaml
func loadYAMLConfig(cfg *Config) error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
