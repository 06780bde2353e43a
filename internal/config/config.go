package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	CRM      CRMConfig      `mapstructure:"crm"`
	Export   ExportConfig   `mapstructure:"export"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// CRMConfig holds upstream CRM API settings, including the OAuth client
// credentials used for token exchange and refresh.
type CRMConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	SSOKey       string `mapstructure:"sso_key"`
	PageSize     int    `mapstructure:"page_size"`
	PageDelayMs  int    `mapstructure:"page_delay_ms"`
	TimeoutSec   int    `mapstructure:"timeout_sec"`
}

// PageDelay returns the mandatory delay inserted between paginated calls.
func (c *CRMConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// ExportConfig holds job lifecycle and rendering settings.
type ExportConfig struct {
	RetentionMinutes    int `mapstructure:"retention_minutes"`
	ReapIntervalMinutes int `mapstructure:"reap_interval_minutes"`
	EmailBodyLimit      int `mapstructure:"email_body_limit"`
	TranscriptLimit     int `mapstructure:"transcript_limit"`
}

// Retention returns how long finished (or stuck) jobs and their artifacts
// are kept before the reaper removes them.
func (c *ExportConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// ReapInterval returns the sweep period of the reaper, coarser than the
// retention window.
func (c *ExportConfig) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalMinutes) * time.Minute
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2, s3compatible
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	Path   string `mapstructure:"path"`   // sqlite file path
	DSN    string `mapstructure:"dsn"`    // postgres connection string
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("crm.base_url", "https://services.leadconnectorhq.com")
	v.SetDefault("crm.page_size", 100)
	v.SetDefault("crm.page_delay_ms", 50)
	v.SetDefault("crm.timeout_sec", 30)
	v.SetDefault("export.retention_minutes", 60)
	v.SetDefault("export.reap_interval_minutes", 5)
	v.SetDefault("export.email_body_limit", 3000)
	v.SetDefault("export.transcript_limit", 2000)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/exports")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "convohist-exports")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/convohist.db")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("crm.base_url", "CRM_BASE_URL")
	v.BindEnv("crm.client_id", "CRM_CLIENT_ID")
	v.BindEnv("crm.client_secret", "CRM_CLIENT_SECRET")
	v.BindEnv("crm.sso_key", "CRM_SSO_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("database.dsn", "DATABASE_DSN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
