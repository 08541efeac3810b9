package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines run configuration.
type Config struct {
	Jira         JiraConfig         `yaml:"jira"`
	Cache        CacheConfig        `yaml:"cache"`
	Contributors ContributorsConfig `yaml:"contributors"`
	Log          LogConfig          `yaml:"log"`
}

type JiraConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	Email          string `yaml:"email"`
	MaxResults     int    `yaml:"max_results"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CacheConfig struct {
	Dir string `yaml:"dir"`
}

type ContributorsConfig struct {
	// PersonFields lists the custom field IDs known to hold person
	// references on this deployment. Empty means scan all custom fields.
	PersonFields []string `yaml:"person_fields"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional YAML file and environment
// variables. path overrides CONTRIBSUM_CONFIG_PATH.
func Load(path string) (Config, error) {
	cfg := Config{
		Jira: JiraConfig{
			MaxResults:     1000,
			TimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}

	if path == "" {
		path = os.Getenv("CONTRIBSUM_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if token := os.Getenv("JIRA_API_TOKEN"); token != "" && cfg.Jira.Token == "" {
		cfg.Jira.Token = token
	}
	if email := os.Getenv("JIRA_EMAIL"); email != "" && cfg.Jira.Email == "" {
		cfg.Jira.Email = email
	}
	if dir := os.Getenv("CONTRIBSUM_CACHE_DIR"); dir != "" {
		cfg.Cache.Dir = dir
	}
	if level := os.Getenv("CONTRIBSUM_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
