package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "supaexport.yaml"

// ErrNoConfig is returned when no config file exists in the project or home.
var ErrNoConfig = errors.New("no config file found in project or ~/.supaexport/config.yaml")

// Config is the on-disk supaexport.yaml. Relative directories are resolved
// against the directory holding the file.
type Config struct {
	Project       string              `yaml:"project,omitempty"`
	BaseURL       string              `yaml:"base_url,omitempty"`
	Tables        []string            `yaml:"tables"`
	PageSize      int                 `yaml:"page_size"`
	Retries       int                 `yaml:"retries"`
	RetryDelay    time.Duration       `yaml:"retry_delay"`
	Timeout       time.Duration       `yaml:"timeout"`
	LiteralStyle  string              `yaml:"literal_style"`
	MigrationsDir string              `yaml:"migrations_dir"`
	SchemaDir     string              `yaml:"schema_dir"`
	DataDir       string              `yaml:"data_dir"`
	Columns       map[string][]string `yaml:"columns,omitempty"`

	// Root is the directory of the file the config was read from.
	Root string `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Tables:        []string{"regions", "crags", "climbs", "user_climbs", "admin_actions"},
		PageSize:      1000,
		Retries:       3,
		RetryDelay:    time.Second,
		Timeout:       30 * time.Second,
		LiteralStyle:  "compat",
		MigrationsDir: "db/migrations",
		SchemaDir:     "db/schema",
		DataDir:       "db/data",
	}
}

// FindConfigFile looks for supaexport.yaml in the current directory and its
// parents, falling back to the global config.
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return FindConfigFileFrom(dir)
}

func FindConfigFileFrom(dir string) (string, error) {
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	globalConfig := filepath.Join(homeDir, ".supaexport", "config.yaml")
	if _, err := os.Stat(globalConfig); err == nil {
		return globalConfig, nil
	}

	return "", ErrNoConfig
}

// ReadConfig reads configPath on top of the defaults.
func ReadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Root = filepath.Dir(configPath)
	cfg.resolve(cfg.Root)
	return cfg, nil
}

// LoadConfig reads configPath, or the discovered config file when configPath
// is empty. Without any config file the defaults are returned.
func LoadConfig(configPath string) (Config, error) {
	if configPath == "" {
		found, err := FindConfigFile()
		if errors.Is(err, ErrNoConfig) {
			return DefaultConfig(), nil
		}
		if err != nil {
			return Config{}, fmt.Errorf("finding config file: %w", err)
		}
		configPath = found
	}
	return ReadConfig(configPath)
}

func (c *Config) resolve(root string) {
	for _, p := range []*string{&c.MigrationsDir, &c.SchemaDir, &c.DataDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

// WriteConfig writes cfg as YAML to configPath.
func WriteConfig(configPath string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("creating yaml: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// RESTBaseURL returns override when set, else the project's hosted REST root.
func RESTBaseURL(project, override string) string {
	if override != "" {
		return override
	}
	return fmt.Sprintf("https://%s.supabase.co/rest/v1", project)
}
