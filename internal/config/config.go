package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. STRAVASYNC_CLIENT_ID.
const EnvPrefix = "STRAVASYNC"

// Distance units accepted by DistanceUnit.
const (
	UnitMetric   = "metric"
	UnitImperial = "imperial"
)

// Config holds application configuration
type Config struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RefreshToken string `mapstructure:"refresh_token" validate:"required"`
	APIURL       string `mapstructure:"api_url" validate:"required,url"`
	TokenURL     string `mapstructure:"token_url" validate:"required,url"`

	ActivityTypes        []string      `mapstructure:"activity_types"`
	RecentActivities     int           `mapstructure:"recent_activities" validate:"min=1"`
	PhotosEnabled        bool          `mapstructure:"photos_enabled"`
	PhotoRefreshInterval time.Duration `mapstructure:"photo_refresh_interval" validate:"min=1m"`
	MaxImages            int           `mapstructure:"max_images" validate:"min=1"`
	GeocodeAPIKey        string        `mapstructure:"geocode_api_key"`
	GeocodeURL           string        `mapstructure:"geocode_url" validate:"required,url"`
	DistanceUnit         string        `mapstructure:"distance_unit" validate:"oneof=metric imperial"`

	DatabasePath   string        `mapstructure:"db_path" validate:"required"`
	SyncInterval   time.Duration `mapstructure:"sync_interval" validate:"min=1m"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
	RateLimit      float64       `mapstructure:"rate_limit" validate:"gt=0"`

	ListenAddr            string `mapstructure:"listen_addr"`
	WebhookSubscriptionID int64  `mapstructure:"webhook_subscription_id"`
	WebhookHost           string `mapstructure:"webhook_host"`
	WebhookVerifyToken    string `mapstructure:"webhook_verify_token"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "https://www.strava.com/api/v3")
	v.SetDefault("token_url", "https://www.strava.com/oauth/token")
	v.SetDefault("activity_types", []string{})
	v.SetDefault("recent_activities", 1)
	v.SetDefault("photos_enabled", false)
	v.SetDefault("photo_refresh_interval", 24*time.Hour)
	v.SetDefault("max_images", 100)
	v.SetDefault("geocode_url", "https://geocode.xyz")
	v.SetDefault("distance_unit", UnitMetric)
	v.SetDefault("db_path", "stravasync.db")
	v.SetDefault("sync_interval", 30*time.Minute)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("rate_limit", 5.0)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// New returns a viper instance wired to the environment and, when configFile
// is non-empty, that file. Without a file the default search paths are used
// and a missing file is not an error.
func New(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"client_id", "client_secret", "refresh_token", "webhook_subscription_id", "webhook_host", "webhook_verify_token", "geocode_api_key"} {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("stravasync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stravasync")
	}
	return v
}

// LoadConfig loads configuration from the environment and optional config file
func LoadConfig(configFile string) (*Config, error) {
	return FromViper(New(configFile), configFile != "")
}

// FromViper reads, decodes and validates the configuration held by v.
func FromViper(v *viper.Viper, fileRequired bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if fileRequired || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	cfg.ActivityTypes = splitList(cfg.ActivityTypes)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and returns a single readable error.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return errors.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// splitList flattens comma separated entries, which is how env vars arrive.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
