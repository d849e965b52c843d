package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the top-level druid.yaml configuration file.
type FileConfig struct {
	Spring  SpringConfig  `yaml:"spring"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// SpringConfig holds the spring.* section.
type SpringConfig struct {
	Datasource DatasourceYAML `yaml:"datasource"`
}

// DatasourceYAML is the spring.datasource section: the base data source
// settings inline plus the druid sub-tree.
type DatasourceYAML struct {
	DataSourceProperties `yaml:",inline"`
	Druid                *DruidProperties `yaml:"druid"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var cfg FileConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultFileConfig returns a FileConfig pre-filled with the druid defaults
// and an embedded SQLite data source.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Spring: SpringConfig{
			Datasource: DatasourceYAML{
				DataSourceProperties: DataSourceProperties{
					Name:            "dataSource",
					URL:             EmbeddedURL,
					DriverClassName: "sqlite",
				},
				Druid: DefaultDruidProperties(),
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS:            CORSConfig{Origins: []string{"*"}},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteConfig writes cfg to path as YAML. An existing file is only replaced
// when force is set.
func WriteConfig(path string, cfg *FileConfig, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrConfigExists)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
