/*
Package config layers the settings of a conversion: built-in defaults, an
optional YAML file, then OHDATA_* environment variables. Command line
flags are applied on top by the caller.
*/
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/convert"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "OHDATA"

type Config struct {
	Reference struct {
		// tab separated table or VCF, optionally compressed
		Path string `yaml:"path" split_words:"true"`
		URL  string `yaml:"url" split_words:"true"`
	} `yaml:"reference"`

	// header template files; empty means the compiled-in revisions
	HeaderTemplates []string `yaml:"header_templates" split_words:"true"`

	Vcf struct {
		Source     string `yaml:"source" split_words:"true"`
		SampleName string `yaml:"sample_name" split_words:"true"`
	} `yaml:"vcf"`

	Output struct {
		Dir string `yaml:"dir" split_words:"true"`
	} `yaml:"output"`

	Alert struct {
		WebhookURL string `yaml:"webhook_url" split_words:"true"`
		Service    string `yaml:"service" split_words:"true"`
	} `yaml:"alert"`

	LogLevel    string `yaml:"log_level" split_words:"true"`
	Concurrency int    `yaml:"concurrency" split_words:"true"`
}

// Default returns the settings used when nothing else is configured
func Default() *Config {
	cfg := &Config{}
	cfg.Reference.Path = "reference/reference_b37.txt"
	cfg.Reference.URL = convert.DefaultReferenceURL
	cfg.Vcf.Source = convert.DefaultSource
	cfg.Vcf.SampleName = convert.DefaultSampleName
	cfg.Output.Dir = "files"
	cfg.Alert.Service = "open-humans-data-extraction"
	cfg.LogLevel = "info"
	cfg.Concurrency = 2
	return cfg
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and the environment
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		configFile, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open the config file: %w", err)
		}
		if err := yaml.Unmarshal(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse the config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level is the parsed log level; Validate guarantees it parses
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Templates loads the configured header templates or returns the defaults
func (c *Config) Templates() (convert.HeaderTemplates, error) {
	if len(c.HeaderTemplates) == 0 {
		return convert.DefaultHeaderTemplates(), nil
	}
	return convert.LoadHeaderTemplates(c.HeaderTemplates...)
}
