package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"snapwatch/internal/model"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML config file.
const ConfigFileEnv = "SNAPWATCH_CONFIG"

type Config struct {
	CameraIndex            int
	CameraWarmup           time.Duration
	PollInterval           time.Duration
	ChangeThresholdPercent float64
	PixelEpsilon           int
	MinConfidence          float64
	DetectionURL           string
	DetectionAPIKey        string
	DetectionTimeout       time.Duration
	StorageDestination     string
	StorageAPIKey          string
	KeyPrefix              string
	UploadTimeout          time.Duration
	UploadMaxAttempts      int
	UploadRetryInterval    time.Duration
	UploadRetryMaxInterval time.Duration
	LocalCaptureDir        string
	MaxLocalCaptures       int
	KeepDiscardedCaptures  bool
	DatabasePath           string
	LogDirectory           string
	Port                   int
	NTPServer              string
	MaxClockSkew           time.Duration
}

// fileConfig mirrors Config for YAML files. Durations are expressed in
// seconds or milliseconds as in the environment variables.
type fileConfig struct {
	CameraIndex            int     `yaml:"camera_index"`
	CameraWarmupMs         int     `yaml:"camera_warmup_ms"`
	PollIntervalSeconds    float64 `yaml:"poll_interval_seconds"`
	ChangeThresholdPercent float64 `yaml:"change_threshold_percent"`
	PixelEpsilon           int     `yaml:"pixel_epsilon"`
	MinConfidence          float64 `yaml:"min_confidence"`
	DetectionURL           string  `yaml:"detection_url"`
	DetectionAPIKey        string  `yaml:"detection_api_key"`
	DetectionTimeoutSec    float64 `yaml:"detection_timeout_seconds"`
	StorageDestination     string  `yaml:"storage_destination"`
	StorageAPIKey          string  `yaml:"storage_api_key"`
	KeyPrefix              string  `yaml:"key_prefix"`
	UploadTimeoutSec       float64 `yaml:"upload_timeout_seconds"`
	UploadMaxAttempts      int     `yaml:"upload_max_attempts"`
	UploadRetryInitialMs   int     `yaml:"upload_retry_initial_ms"`
	UploadRetryMaxMs       int     `yaml:"upload_retry_max_ms"`
	LocalCaptureDir        string  `yaml:"local_capture_dir"`
	MaxLocalCaptures       int     `yaml:"max_local_captures"`
	KeepDiscardedCaptures  bool    `yaml:"keep_discarded_captures"`
	DatabasePath           string  `yaml:"db_path"`
	LogDirectory           string  `yaml:"log_dir"`
	Port                   int     `yaml:"port"`
	NTPServer              string  `yaml:"ntp_server"`
	MaxClockSkewMs         int     `yaml:"max_clock_skew_ms"`
}

func defaults() fileConfig {
	return fileConfig{
		CameraIndex:            0,
		CameraWarmupMs:         500,
		PollIntervalSeconds:    30,
		ChangeThresholdPercent: 5.0,
		PixelEpsilon:           0,
		MinConfidence:          0.50,
		DetectionTimeoutSec:    10,
		UploadTimeoutSec:       30,
		UploadMaxAttempts:      3,
		UploadRetryInitialMs:   500,
		UploadRetryMaxMs:       5000,
		LocalCaptureDir:        "captured_images",
		MaxLocalCaptures:       0,
		KeepDiscardedCaptures:  true,
		DatabasePath:           filepath.Join(".", "data", "snapwatch.db"),
		LogDirectory:           filepath.Join(".", "logs"),
		Port:                   8080,
		MaxClockSkewMs:         2000,
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. A .env file in the working
// directory is loaded first when present. An empty path falls back to the
// SNAPWATCH_CONFIG environment variable.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	fc := defaults()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return &Config{
		CameraIndex:            getEnvAsInt("CAMERA_INDEX", fc.CameraIndex),
		CameraWarmup:           millis(getEnvAsInt("CAMERA_WARMUP_MS", fc.CameraWarmupMs)),
		PollInterval:           seconds(getEnvAsFloat("POLL_INTERVAL_SECONDS", fc.PollIntervalSeconds)),
		ChangeThresholdPercent: getEnvAsFloat("CHANGE_THRESHOLD_PERCENT", fc.ChangeThresholdPercent),
		PixelEpsilon:           getEnvAsInt("PIXEL_EPSILON", fc.PixelEpsilon),
		MinConfidence:          getEnvAsFloat("MIN_CONFIDENCE", fc.MinConfidence),
		DetectionURL:           getEnv("DETECTION_URL", fc.DetectionURL),
		DetectionAPIKey:        getEnv("DETECTION_API_KEY", fc.DetectionAPIKey),
		DetectionTimeout:       seconds(getEnvAsFloat("DETECTION_TIMEOUT_SECONDS", fc.DetectionTimeoutSec)),
		StorageDestination:     getEnv("STORAGE_DESTINATION", fc.StorageDestination),
		StorageAPIKey:          getEnv("STORAGE_API_KEY", fc.StorageAPIKey),
		KeyPrefix:              getEnv("KEY_PREFIX", fc.KeyPrefix),
		UploadTimeout:          seconds(getEnvAsFloat("UPLOAD_TIMEOUT_SECONDS", fc.UploadTimeoutSec)),
		UploadMaxAttempts:      getEnvAsInt("UPLOAD_MAX_ATTEMPTS", fc.UploadMaxAttempts),
		UploadRetryInterval:    millis(getEnvAsInt("UPLOAD_RETRY_INITIAL_MS", fc.UploadRetryInitialMs)),
		UploadRetryMaxInterval: millis(getEnvAsInt("UPLOAD_RETRY_MAX_MS", fc.UploadRetryMaxMs)),
		LocalCaptureDir:        getEnv("LOCAL_CAPTURE_DIR", fc.LocalCaptureDir),
		MaxLocalCaptures:       getEnvAsInt("MAX_LOCAL_CAPTURES", fc.MaxLocalCaptures),
		KeepDiscardedCaptures:  getEnvAsBool("KEEP_DISCARDED_CAPTURES", fc.KeepDiscardedCaptures),
		DatabasePath:           getEnvAllowEmpty("DB_PATH", fc.DatabasePath),
		LogDirectory:           getEnv("LOG_DIR", fc.LogDirectory),
		Port:                   getEnvAsInt("PORT", fc.Port),
		NTPServer:              getEnv("NTP_SERVER", fc.NTPServer),
		MaxClockSkew:           millis(getEnvAsInt("MAX_CLOCK_SKEW_MS", fc.MaxClockSkewMs)),
	}, nil
}

// Validate rejects configurations the monitor cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.CameraIndex < 0 {
		errs = append(errs, fmt.Errorf("camera_index must be >= 0, got %d", c.CameraIndex))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_seconds must be > 0"))
	}
	if c.ChangeThresholdPercent < 0 || c.ChangeThresholdPercent > 100 {
		errs = append(errs, fmt.Errorf("change_threshold_percent must be within [0, 100], got %g", c.ChangeThresholdPercent))
	}
	if c.PixelEpsilon < 0 || c.PixelEpsilon > 255 {
		errs = append(errs, fmt.Errorf("pixel_epsilon must be within [0, 255], got %d", c.PixelEpsilon))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min_confidence must be within [0, 1], got %g", c.MinConfidence))
	}
	if c.DetectionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("detection_timeout_seconds must be > 0"))
	}
	if strings.TrimSpace(c.StorageDestination) == "" {
		errs = append(errs, fmt.Errorf("storage_destination is required"))
	}
	if c.UploadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("upload_timeout_seconds must be > 0"))
	}
	if c.UploadMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("upload_max_attempts must be >= 1, got %d", c.UploadMaxAttempts))
	}
	if c.UploadRetryInterval <= 0 || c.UploadRetryMaxInterval < c.UploadRetryInterval {
		errs = append(errs, fmt.Errorf("upload retry intervals must satisfy 0 < initial <= max"))
	}
	if strings.TrimSpace(c.LocalCaptureDir) == "" {
		errs = append(errs, fmt.Errorf("local_capture_dir is required"))
	}
	if c.MaxLocalCaptures < 0 {
		errs = append(errs, fmt.Errorf("max_local_captures must be >= 0, got %d", c.MaxLocalCaptures))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", model.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
