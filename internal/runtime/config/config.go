// Package config holds the runtime-wide configuration for the orchestration
// wrapper: AWS identity (used for short-ARN expansion), the tracker and
// secret store backends, the database factory, and retry/compression
// tuning.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config groups the settings a wrapped handler needs at process start. Only
// the fields relevant to the configured backends are required; see
// Validate.
type Config struct {
	// AWS identity, used for short-ARN expansion and as the default
	// region/account for the next-function invoker.
	AWSStage     string
	AWSRegion    string
	AWSAccountID string
	// AWSEndpoint optionally overrides the AWS endpoint (LocalStack in
	// local development).
	AWSEndpoint string

	// TrackerStore selects the Tracker Protocol's backing store:
	// "s3" (production default) or "bbolt" (local/offline).
	TrackerStore     string
	TrackerS3Bucket  string
	TrackerBoltPath  string
	TrackerSecretKey string // Vault path for the tracker's service-account secret.

	// SecretStoreAddress is the Vault server address used by the secret
	// fetcher.
	SecretStoreAddress string
	SecretStoreToken   string
	SecretStoreMount   string

	// DatabaseURL is the Postgres DSN backing the HandlerContext's
	// database-client factory.
	DatabaseURL string

	// SequenceTrackerARN, if set, is the distinguished tracker function
	// notified on every invocation that is part of a sequence.
	SequenceTrackerARN string

	// CallDepthLimit is checked by Validate and stored; nothing in the
	// runtime enforces a call depth.
	CallDepthLimit int

	// CompressionMinBytes tunes the Envelope Codec: payloads smaller than
	// this are passed through uncompressed.
	CompressionMinBytes int

	// RetryMaxAttempts and RetryInitialInterval/RetryMaxInterval are
	// checked by Validate only; the next-function invoker makes a single
	// attempt and performs no retries.
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// MetricsEnabled and MetricsPort are checked by Validate only:
	// Bootstrap always records Prometheus metrics and starts no metrics
	// server.
	MetricsEnabled bool
	MetricsPort    int

	// TracingEnabled toggles OpenTelemetry span emission.
	TracingEnabled bool
}

func (c *Config) GetAWSRegion() string    { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string { return c.AWSAccountID }
func (c *Config) GetAWSStage() string     { return c.AWSStage }
func (c *Config) GetAWSEndpoint() string  { return c.AWSEndpoint }

// String renders the config with credentials redacted, safe for logging.
func (c Config) String() string {
	redacted := c
	if redacted.SecretStoreToken != "" {
		redacted.SecretStoreToken = "***REDACTED***"
	}
	if redacted.DatabaseURL != "" {
		redacted.DatabaseURL = redactURLCredentials(redacted.DatabaseURL)
	}
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(redacted))
}

func redactURLCredentials(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "***REDACTED_URL***"
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***REDACTED***")
		}
	}
	return parsed.String()
}

// Validate checks that the configuration has all fields required by the
// backends it selects. Validation of the tracker store choice is lenient
// about unknown values so custom store implementations can be registered
// without changing this package.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateAWS()...)
	errs = append(errs, c.validateTrackerStore()...)
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateAWS() []error {
	var errs []error
	if c.AWSRegion == "" {
		errs = append(errs, errors.New("aws: region is required for short-ARN expansion"))
	}
	if c.AWSStage == "" {
		errs = append(errs, errors.New("aws: stage is required for short-ARN expansion and tracker paths"))
	}
	return errs
}

func (c *Config) validateTrackerStore() []error {
	switch strings.ToLower(c.TrackerStore) {
	case "s3":
		if c.TrackerS3Bucket == "" {
			return []error{errors.New("tracker: s3 bucket is required")}
		}
	case "bbolt":
		if c.TrackerBoltPath == "" {
			return []error{errors.New("tracker: bbolt file path is required")}
		}
	case "":
		// No tracker configured; permitted for handlers that never act
		// as the distinguished tracker target.
	}
	return nil
}

func (c *Config) validateRetry() []error {
	var errs []error
	if c.RetryMaxAttempts < 0 {
		errs = append(errs, errors.New("retry: max attempts cannot be negative"))
	}
	if c.RetryInitialInterval < 0 {
		errs = append(errs, errors.New("retry: initial interval cannot be negative"))
	}
	if c.RetryMaxInterval < 0 {
		errs = append(errs, errors.New("retry: max interval cannot be negative"))
	}
	if c.RetryMaxInterval > 0 && c.RetryInitialInterval > 0 && c.RetryInitialInterval > c.RetryMaxInterval {
		errs = append(errs, errors.New("retry: initial interval cannot exceed max interval"))
	}
	return errs
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	return errs
}

// ValidateConfig is a convenience wrapper over (*Config).Validate.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
