package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"autophish/models"
	"autophish/utils"
)

const (
	DefaultPath          = "config.json"
	DefaultTemplateDir   = "templates/"
	DefaultExtension     = ".txt"
	DefaultCampaignURL   = "http://example.com"
	DefaultDispatchDelay = 120 * time.Second
	DefaultNotifyPort    = 587
)

// Config models the run configuration. JSON files decode as well since JSON
// is valid YAML.
type Config struct {
	APIKey             string `yaml:"api_key"`
	Host               string `yaml:"host"`
	InsecureSkipVerify *bool  `yaml:"insecure_skip_verify"`
	CampaignURL        string `yaml:"campaign_url"`
	RecipientEmail     string `yaml:"recipient_email"`

	Group struct {
		Name    string          `yaml:"name"`
		Targets []models.Target `yaml:"targets"`
	} `yaml:"group"`

	SMTPProfiles []SMTPProfile `yaml:"smtp_profiles"`
	// SMTP is the single-profile form; it is appended to SMTPProfiles.
	SMTP *SMTPProfile `yaml:"smtp"`

	LandingPage struct {
		Name               string `yaml:"name"`
		HTML               string `yaml:"html"`
		IsBase64           bool   `yaml:"is_base64"`
		CaptureCredentials bool   `yaml:"capture_credentials"`
		CapturePasswords   bool   `yaml:"capture_passwords"`
		RedirectURL        string `yaml:"redirect_url"`
	} `yaml:"landing_page"`

	Template struct {
		IsBase64      bool   `yaml:"is_base64"`
		SkipAmbiguous *bool  `yaml:"skip_ambiguous"`
		Dir           string `yaml:"dir"`
		Extension     string `yaml:"extension"`
	} `yaml:"template"`

	Dispatch struct {
		Delay      *time.Duration `yaml:"delay"`
		NotifyPort int            `yaml:"notify_port"`
	} `yaml:"dispatch"`
}

// SMTPProfile is one sending profile. Secret and Password are aliases.
type SMTPProfile struct {
	Name             string            `yaml:"name"`
	Host             string            `yaml:"host"`
	FromAddress      string            `yaml:"from_address"`
	Username         string            `yaml:"username"`
	Secret           string            `yaml:"secret"`
	Password         string            `yaml:"password"`
	IgnoreCertErrors bool              `yaml:"ignore_cert_errors"`
	Headers          map[string]string `yaml:"headers"`
}

func (p SMTPProfile) Credential() string {
	if p.Secret != "" {
		return p.Secret
	}
	return p.Password
}

// SendingProfile converts the profile into the remote object.
func (p SMTPProfile) SendingProfile() models.SendingProfile {
	keys := make([]string, 0, len(p.Headers))
	for k := range p.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]models.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, models.Header{Key: k, Value: p.Headers[k]})
	}
	return models.SendingProfile{
		Name:             p.Name,
		InterfaceType:    "SMTP",
		Host:             p.Host,
		FromAddress:      p.FromAddress,
		Username:         p.Username,
		Password:         p.Credential(),
		IgnoreCertErrors: p.IgnoreCertErrors,
		Headers:          headers,
	}
}

func LoadConfig(configPath string) (*Config, error) {
	// .env is optional and never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	config, err := FromYAML(data)
	if err != nil {
		return nil, err
	}

	config.overrideWithEnvVars()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadTemplateSettings reads configPath for commands that only use the
// template section. Defaults are applied and nothing is validated.
func LoadTemplateSettings(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	config, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	config.applyDefaults()
	return config, nil
}

// FromYAML decodes raw configuration without defaults or validation.
func FromYAML(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (c *Config) overrideWithEnvVars() {
	if key := GetEnv("GOPHISH_API_KEY", ""); key != "" {
		c.APIKey = key
	}
	if host := GetEnv("GOPHISH_HOST", ""); host != "" {
		c.Host = host
	}
	if to := GetEnv("AUTOPHISH_RECIPIENT_EMAIL", ""); to != "" {
		c.RecipientEmail = to
	}
}

func (c *Config) applyDefaults() {
	if c.InsecureSkipVerify == nil {
		insecure := true
		c.InsecureSkipVerify = &insecure
	}
	if c.CampaignURL == "" {
		c.CampaignURL = DefaultCampaignURL
	}
	if c.SMTP != nil {
		c.SMTPProfiles = append(c.SMTPProfiles, *c.SMTP)
		c.SMTP = nil
	}
	if c.Template.SkipAmbiguous == nil {
		skip := true
		c.Template.SkipAmbiguous = &skip
	}
	if c.Template.Dir == "" {
		c.Template.Dir = DefaultTemplateDir
	}
	if c.Template.Extension == "" {
		c.Template.Extension = DefaultExtension
	}
	if c.Dispatch.Delay == nil {
		delay := DefaultDispatchDelay
		c.Dispatch.Delay = &delay
	}
	if c.Dispatch.NotifyPort == 0 {
		c.Dispatch.NotifyPort = DefaultNotifyPort
	}
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs error
	if c.APIKey == "" {
		errs = multierr.Append(errs, fmt.Errorf("api_key is required"))
	}
	if c.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("host is required"))
	}
	if !utils.ValidateEmail(c.RecipientEmail) {
		errs = multierr.Append(errs, fmt.Errorf("recipient_email %q is not a valid address", c.RecipientEmail))
	}
	if c.Group.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("group.name is required"))
	}
	for i, target := range c.Group.Targets {
		if !utils.ValidateEmail(target.Email) {
			errs = multierr.Append(errs, fmt.Errorf("group.targets[%d].email %q is not a valid address", i, target.Email))
		}
	}
	if len(c.SMTPProfiles) == 0 && c.SMTP == nil {
		errs = multierr.Append(errs, fmt.Errorf("at least one smtp_profiles entry is required"))
	}
	for i, p := range c.SMTPProfiles {
		if p.Name == "" || p.Host == "" || p.FromAddress == "" {
			errs = multierr.Append(errs, fmt.Errorf("smtp_profiles[%d] requires name, host and from_address", i))
		}
	}
	if c.LandingPage.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("landing_page.name is required"))
	}
	if c.Dispatch.Delay != nil && *c.Dispatch.Delay < 0 {
		errs = multierr.Append(errs, fmt.Errorf("dispatch.delay must not be negative"))
	}
	return errs
}

func (c *Config) PacingDelay() time.Duration {
	if c.Dispatch.Delay == nil {
		return DefaultDispatchDelay
	}
	return *c.Dispatch.Delay
}

func (c *Config) SkipAmbiguousTemplates() bool {
	return c.Template.SkipAmbiguous == nil || *c.Template.SkipAmbiguous
}

func (c *Config) Insecure() bool {
	return c.InsecureSkipVerify == nil || *c.InsecureSkipVerify
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
