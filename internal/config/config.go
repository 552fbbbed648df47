package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "AUTHSHIFT"
	defaultHTTPAddress     = "0.0.0.0:7777"
	defaultSourcePath      = "source.db"
	defaultTargetPath      = "target.db"
	defaultLogLevel        = "info"
	defaultBatchSize       = 5000
	defaultParamCeiling    = 65000
	defaultTempEmailDomain = "temp.authshift.local"
	defaultOperatorIssuer  = "authshift-operator"
)

// AppConfig captures runtime configuration for the migration service.
type AppConfig struct {
	HTTPAddress        string
	SourceDatabasePath string
	TargetDatabasePath string
	LogLevel           string

	OperatorSigningKey string
	OperatorIssuer     string

	BatchSize       int
	ResumeFromID    string
	TempEmailDomain string
	ParamCeiling    int

	AdminCapability     bool
	AnonymousCapability bool
	PhoneCapability     bool
	SupportedProviders  []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("source.database_path", defaultSourcePath)
	configViper.SetDefault("target.database_path", defaultTargetPath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("operator.issuer", defaultOperatorIssuer)
	configViper.SetDefault("migration.batch_size", defaultBatchSize)
	configViper.SetDefault("migration.param_ceiling", defaultParamCeiling)
	configViper.SetDefault("migration.temp_email_domain", defaultTempEmailDomain)
	configViper.SetDefault("capabilities.admin", true)
	configViper.SetDefault("capabilities.anonymous", true)
	configViper.SetDefault("capabilities.phone_number", true)
	configViper.SetDefault("capabilities.providers", []string{})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		SourceDatabasePath:  configViper.GetString("source.database_path"),
		TargetDatabasePath:  configViper.GetString("target.database_path"),
		LogLevel:            configViper.GetString("log.level"),
		OperatorSigningKey:  configViper.GetString("operator.signing_secret"),
		OperatorIssuer:      configViper.GetString("operator.issuer"),
		BatchSize:           configViper.GetInt("migration.batch_size"),
		ResumeFromID:        configViper.GetString("migration.resume_from_id"),
		TempEmailDomain:     configViper.GetString("migration.temp_email_domain"),
		ParamCeiling:        configViper.GetInt("migration.param_ceiling"),
		AdminCapability:     configViper.GetBool("capabilities.admin"),
		AnonymousCapability: configViper.GetBool("capabilities.anonymous"),
		PhoneCapability:     configViper.GetBool("capabilities.phone_number"),
		SupportedProviders:  configViper.GetStringSlice("capabilities.providers"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SourceDatabasePath) == "" {
		return fmt.Errorf("source.database_path is required")
	}
	if strings.TrimSpace(c.TargetDatabasePath) == "" {
		return fmt.Errorf("target.database_path is required")
	}
	if strings.TrimSpace(c.OperatorSigningKey) == "" {
		return fmt.Errorf("operator.signing_secret is required")
	}
	if strings.TrimSpace(c.OperatorIssuer) == "" {
		return fmt.Errorf("operator.issuer is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("migration.batch_size must be positive")
	}
	if c.ParamCeiling <= 0 {
		return fmt.Errorf("migration.param_ceiling must be positive")
	}
	if strings.TrimSpace(c.TempEmailDomain) == "" {
		return fmt.Errorf("migration.temp_email_domain is required")
	}
	return nil
}
