package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	kerrors "github.com/systmms/keyrotate/internal/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "KEYROTATE"

// Probe names accepted in Config.Probe.
const (
	ProbeIAM = "iam"
	ProbeSTS = "sts"
)

// Store backends accepted in Config.Store.
const (
	StoreSecretsManager = "secretsmanager"
	StoreSSM            = "ssm"
)

// Config is the explicit configuration of one rotator deployment. Nothing in
// the engine reads the process environment; everything it needs comes from here.
type Config struct {
	// Principal is the IAM user whose access key is rotated.
	Principal string `yaml:"principal" envconfig:"PRINCIPAL"`

	// RecordID is the secret holding the key. Defaults to /access-key/<principal>.
	RecordID string `yaml:"record_id" envconfig:"RECORD_ID"`

	// Recipient is the full address of the key owner. When empty it is built
	// from RecipientUser and RecipientDomain.
	Recipient       string `yaml:"recipient" envconfig:"RECIPIENT"`
	RecipientUser   string `yaml:"recipient_user" envconfig:"RECIPIENT_USER"`
	RecipientDomain string `yaml:"recipient_domain" envconfig:"RECIPIENT_DOMAIN"`

	// SourceEmail is the verified SES identity notifications are sent from.
	SourceEmail string `yaml:"source_email" envconfig:"SOURCE_EMAIL"`

	// ConsoleURL is linked from the owner notification.
	ConsoleURL string `yaml:"console_url" envconfig:"CONSOLE_URL"`

	AlertTopicARN   string `yaml:"alert_topic_arn" envconfig:"ALERT_TOPIC_ARN"`
	AlertWebhookURL string `yaml:"alert_webhook_url" envconfig:"ALERT_WEBHOOK_URL"`

	// GracePeriod is how long validation waits for a new key to propagate.
	GracePeriod time.Duration `yaml:"grace_period" envconfig:"GRACE_PERIOD"`

	// Probe selects how a new key is exercised: iam or sts.
	Probe string `yaml:"probe" envconfig:"PROBE"`

	// Store selects the secret backend: secretsmanager or ssm.
	Store string `yaml:"store" envconfig:"STORE"`

	// KMSKeyID encrypts SSM SecureString parameters. Empty uses the account default key.
	KMSKeyID string `yaml:"kms_key_id" envconfig:"KMS_KEY_ID"`

	// RotationLambdaARN and RotateAfter are used by init to attach a rotation schedule.
	RotationLambdaARN string        `yaml:"rotation_lambda_arn" envconfig:"ROTATION_LAMBDA_ARN"`
	RotateAfter       time.Duration `yaml:"rotate_after" envconfig:"ROTATE_AFTER"`

	AWS     AWS     `yaml:"aws" envconfig:"AWS"`
	Metrics Metrics `yaml:"metrics" envconfig:"METRICS"`
	Log     Log     `yaml:"log" envconfig:"LOG"`

	// Path is the file the config was read from, if any.
	Path string `yaml:"-" ignored:"true"`
}

// AWS holds SDK settings shared by every adapter.
type AWS struct {
	Region   string `yaml:"region" envconfig:"REGION"`
	Profile  string `yaml:"profile" envconfig:"PROFILE"`
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
}

// Metrics configures where step metrics are pushed after an invocation.
type Metrics struct {
	Pushgateway string `yaml:"pushgateway" envconfig:"PUSHGATEWAY"`
	Job         string `yaml:"job" envconfig:"JOB"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Default returns a config with every optional setting filled in.
func Default() *Config {
	return &Config{
		ConsoleURL:  "https://console.aws.amazon.com/secretsmanager/home",
		GracePeriod: 10 * time.Second,
		Probe:       ProbeIAM,
		Store:       StoreSecretsManager,
		RotateAfter: 90 * 24 * time.Hour,
		Metrics:     Metrics{Job: "keyrotate"},
		Log:         Log{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and then the environment, and validates the result. Flags are
// applied by the caller before Validate when they need the highest precedence;
// see LoadUnvalidated.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate.
func LoadUnvalidated(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.FromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile overlays the YAML file at path onto c.
func (c *Config) FromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return kerrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Pass --config with the path to keyrotate.yaml, or configure through KEYROTATE_* environment variables",
			}
		}
		return kerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}
	if err := c.FromBytes(data); err != nil {
		return err
	}
	c.Path = path
	return nil
}

// FromBytes overlays YAML content onto c. Keys absent from content keep their
// current values.
func (c *Config) FromBytes(content []byte) error {
	if err := yaml.Unmarshal(content, c); err != nil {
		return kerrors.ConfigError{
			Message:    fmt.Sprintf("invalid YAML in configuration file: %v", err),
			Suggestion: "Check for indentation errors, missing quotes, or durations without a unit (use 10s, not 10)",
		}
	}
	return nil
}

// FromEnv overlays KEYROTATE_* environment variables onto c.
func (c *Config) FromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return kerrors.ConfigError{
			Message:    err.Error(),
			Suggestion: "Check the KEYROTATE_* environment variables",
		}
	}
	return nil
}

// Validate checks the configuration is complete enough to run a rotation.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Principal) == "" {
		return kerrors.ConfigError{
			Field:      "principal",
			Message:    "the IAM user to rotate is required",
			Suggestion: "Set 'principal' in the config file or KEYROTATE_PRINCIPAL",
		}
	}

	switch c.Probe {
	case ProbeIAM, ProbeSTS:
	default:
		return kerrors.ConfigError{
			Field:      "probe",
			Value:      c.Probe,
			Message:    "unknown validation probe",
			Suggestion: "Use 'iam' or 'sts'",
		}
	}

	switch c.Store {
	case StoreSecretsManager, StoreSSM:
	default:
		return kerrors.ConfigError{
			Field:      "store",
			Value:      c.Store,
			Message:    "unknown secret store backend",
			Suggestion: "Use 'secretsmanager' or 'ssm'",
		}
	}

	if c.GracePeriod <= 0 {
		return kerrors.ConfigError{
			Field:      "grace_period",
			Value:      c.GracePeriod,
			Message:    "grace period must be positive",
			Suggestion: "IAM keys usually propagate within 10s",
		}
	}

	if c.Recipient == "" && (c.RecipientUser == "") != (c.RecipientDomain == "") {
		return kerrors.ConfigError{
			Field:      "recipient_domain",
			Message:    "recipient_user and recipient_domain must be set together",
			Suggestion: "Or set 'recipient' to the full address",
		}
	}

	if c.ResolveRecipient() != "" && c.SourceEmail == "" {
		return kerrors.ConfigError{
			Field:      "source_email",
			Message:    "a sender address is required to notify the key owner",
			Suggestion: "Set 'source_email' to an SES verified identity",
		}
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return kerrors.ConfigError{
			Field:      "log.format",
			Value:      c.Log.Format,
			Message:    "unknown log format",
			Suggestion: "Use 'console' or 'json'",
		}
	}

	return nil
}

// ResolveRecipient returns the owner's address, or "" when notifications are off.
func (c *Config) ResolveRecipient() string {
	if c.Recipient != "" {
		return c.Recipient
	}
	if c.RecipientUser == "" || c.RecipientDomain == "" {
		return ""
	}
	return c.RecipientUser + "@" + strings.TrimPrefix(c.RecipientDomain, "@")
}

// ResolveRecordID returns the secret name for the principal's key.
func (c *Config) ResolveRecordID() string {
	if c.RecordID != "" {
		return c.RecordID
	}
	return "/access-key/" + c.Principal
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.Log.Level, "debug")
}
