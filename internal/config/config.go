// Package config defines service configuration and how it is loaded.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// ModelsDir holds the scaler, booster and LSTM artifacts.
	ModelsDir string `koanf:"models_dir" validate:"required"`

	// BlendWeight is the tree ensemble share of the blended prediction.
	BlendWeight float64 `koanf:"blend_weight" validate:"gte=0,lte=1"`

	// SequenceWindow overrides the LSTM window; 0 keeps the model's own.
	SequenceWindow int `koanf:"sequence_window" validate:"omitempty,gte=1"`

	// NegativePolicy is "absolute" or "clamp".
	NegativePolicy string `koanf:"negative_policy" validate:"oneof=absolute clamp"`

	// BatchWorkers bounds concurrent predictions within one batch.
	BatchWorkers int `koanf:"batch_workers" validate:"gte=1"`

	// MaxBatchSize caps readings per batch request.
	MaxBatchSize int `koanf:"max_batch_size" validate:"gte=1,lte=10000"`

	// LocationURL is the IP geolocation endpoint; empty disables /location.
	LocationURL string `koanf:"location_url" validate:"omitempty,url"`

	// LocationTTL is how long a resolved location is reused.
	LocationTTL time.Duration `koanf:"location_ttl" validate:"gt=0"`

	// LocationTimeout bounds a single geolocation request.
	LocationTimeout time.Duration `koanf:"location_timeout" validate:"gt=0"`

	// MetricsInterval is the runtime gauge refresh period.
	MetricsInterval time.Duration `koanf:"metrics_interval" validate:"gte=1s"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":8080",
		ModelsDir:       "models",
		BlendWeight:     0.5,
		NegativePolicy:  "absolute",
		BatchWorkers:    runtime.NumCPU(),
		MaxBatchSize:    256,
		LocationURL:     "https://ipinfo.io/json",
		LocationTTL:     10 * time.Minute,
		LocationTimeout: 5 * time.Second,
		MetricsInterval: 15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}
