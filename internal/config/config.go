// Package config loads service settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`

	// FieldRegistryPath points at the read-only JSON field registry.
	FieldRegistryPath string `envconfig:"FIELD_REGISTRY" default:"fields.json" validate:"required"`

	CacheEntries int           `envconfig:"CACHE_ENTRIES" default:"512" validate:"gte=1"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"15m" validate:"gt=0"`

	// Weather aggregation tuning.
	SunnyCloudMax      float64 `envconfig:"SUNNY_CLOUD_MAX" default:"0.2" validate:"gte=0,lte=1"`
	SunnyPrecipMax     float64 `envconfig:"SUNNY_PRECIP_MAX" default:"0" validate:"gte=0"`
	MaxPointDistanceKm float64 `envconfig:"MAX_POINT_DISTANCE_KM" default:"50" validate:"gt=0"`

	// Imagery pipeline tuning.
	MinValidPixels int     `envconfig:"MIN_VALID_PIXELS" default:"10" validate:"gte=1"`
	CloudProbMask  float64 `envconfig:"CLOUD_PROB_MASK" default:"0.4" validate:"gte=0,lte=1"`

	// Agronomic alert thresholds, degrees Celsius.
	FrostBelow float64 `envconfig:"FROST_BELOW" default:"0"`
	HeatAbove  float64 `envconfig:"HEAT_ABOVE" default:"35"`

	// Open-Meteo source configuration.
	OpenMeteoArchiveURL  string        `envconfig:"OPENMETEO_ARCHIVE_URL" default:"https://archive-api.open-meteo.com/v1/archive" validate:"url"`
	OpenMeteoForecastURL string        `envconfig:"OPENMETEO_FORECAST_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"url"`
	OpenMeteoTimeout     time.Duration `envconfig:"OPENMETEO_TIMEOUT" default:"10s" validate:"gt=0"`
	OpenMeteoMaxPoints   int           `envconfig:"OPENMETEO_MAX_POINTS" default:"9" validate:"gte=1,lte=25"`
	OpenMeteoMaxRetries  int           `envconfig:"OPENMETEO_MAX_RETRIES" default:"3" validate:"gte=0"`
}

// Load reads configuration from a .env file (if present) and the
// environment, applying defaults where unset, then validates the result.
func Load() (*Config, error) {
	// Does not override variables already set in the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}
