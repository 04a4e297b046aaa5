package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/insurebot/internal/model"
)

const (
	defaultBaseURL      = "https://api.mindee.net"
	defaultVersion      = "1"
	defaultPollInterval = 1500 * time.Millisecond
	defaultMaxPolls     = 30
	defaultTimeout      = 60 * time.Second
	defaultMaxImageSide = 2048
)

// Config holds the OCR provider settings and the country profiles.
type Config struct {
	BaseURL string `yaml:"base_url" envconfig:"MINDEE_BASE_URL"`
	APIKey  string `yaml:"api_key" envconfig:"MINDEE_API_KEY"`
	// Account owns the custom vehicle document endpoints.
	Account string `yaml:"account" envconfig:"MINDEE_ACCOUNT"`
	Version string `yaml:"version" envconfig:"MINDEE_VERSION"`

	PollInterval time.Duration `yaml:"poll_interval" envconfig:"MINDEE_POLL_INTERVAL"`
	MaxPolls     int           `yaml:"max_polls" envconfig:"MINDEE_MAX_POLLS"`
	// Timeout bounds one whole extraction, polling included.
	Timeout      time.Duration `yaml:"timeout" envconfig:"MINDEE_TIMEOUT"`
	MaxImageSide int           `yaml:"max_image_side" envconfig:"MINDEE_MAX_IMAGE_SIDE"`

	Countries []model.CountryProfile `yaml:"countries" ignored:"true"`
}

// Normalize validates the config and fills defaults.
func (c *Config) Normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("extraction.api_key (MINDEE_API_KEY) is required")
	}
	if c.Version == "" {
		c.Version = defaultVersion
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = defaultMaxPolls
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxImageSide < 0 {
		return fmt.Errorf("extraction.max_image_side must be >= 0")
	}
	if c.MaxImageSide == 0 {
		c.MaxImageSide = defaultMaxImageSide
	}

	needsAccount := false
	for i := range c.Countries {
		p := &c.Countries[i]
		p.Code = strings.TrimSpace(p.Code)
		p.FrontEndpoint = strings.TrimSpace(p.FrontEndpoint)
		p.BackEndpoint = strings.TrimSpace(p.BackEndpoint)
		if p.FrontEndpoint != "" || p.BackEndpoint != "" {
			needsAccount = true
		}
	}
	if needsAccount && strings.TrimSpace(c.Account) == "" {
		return fmt.Errorf("extraction.account is required for custom vehicle endpoints")
	}
	return nil
}
