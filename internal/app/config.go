package app

import (
	"fmt"
	"strings"

	corecmd "github.com/m3rciful/insurebot/core/cmd"
	coreconfig "github.com/m3rciful/insurebot/core/config"
	coredatabase "github.com/m3rciful/insurebot/core/database"
	"github.com/m3rciful/insurebot/internal/extraction"
	"github.com/m3rciful/insurebot/internal/fallback"
)

// PolicyConfig controls issued documents.
type PolicyConfig struct {
	Issuer string `yaml:"issuer" envconfig:"POLICY_ISSUER"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database   coredatabase.Config `yaml:"database"`
	Extraction extraction.Config   `yaml:"extraction"`
	Fallback   fallback.Config     `yaml:"fallback"`
	Policy     PolicyConfig        `yaml:"policy"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	if err := c.Extraction.Normalize(); err != nil {
		return err
	}
	if _, err := extraction.NewProfiles(c.Extraction.Countries); err != nil {
		return fmt.Errorf("extraction.countries: %w", err)
	}
	if err := c.Fallback.Normalize(); err != nil {
		return err
	}
	c.Policy.Issuer = strings.TrimSpace(c.Policy.Issuer)
	return nil
}

// LoadConfig reads the YAML file at path, applies the environment and validates the result.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg := &Config{}
	if err := coreconfig.Load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}
