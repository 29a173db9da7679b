package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	BackendAuto       = "auto"
	BackendDatabase   = "database"
	BackendFilesystem = "filesystem"
)

type Config struct {
	Port            int    `yaml:"port" validate:"min=1,max=65535"`
	Password        string `yaml:"password"`
	PasswordHash    string `yaml:"password_hash"`
	LogDirectory    string `yaml:"log_dir" validate:"required"`
	StaticDirectory string `yaml:"static_dir"`

	StorageBackend    string `yaml:"storage_backend" validate:"oneof=auto database filesystem"`
	NativeShell       bool   `yaml:"native_shell"`
	DatabasePath      string `yaml:"db_path" validate:"required"`
	DataDirectory     string `yaml:"data_dir" validate:"required"`
	StorageQuotaBytes int64  `yaml:"storage_quota_bytes" validate:"min=0"`

	ExportPrefix string `yaml:"export_prefix" validate:"required"`
	AppName      string `yaml:"app_name" validate:"required"`
	AppVersion   string `yaml:"app_version"`

	MaxImageEdge int  `yaml:"max_image_edge" validate:"min=0"`
	JPEGQuality  int  `yaml:"jpeg_quality" validate:"min=1,max=100"`
	StampOverlay bool `yaml:"stamp_overlay"`

	Scanner ScannerConfig `yaml:"scanner"`
}

// ScannerConfig holds the validator, stabilizer and decoder passthrough knobs.
type ScannerConfig struct {
	MinLength        int           `yaml:"min_length" validate:"min=1"`
	MaxLength        int           `yaml:"max_length" validate:"min=0"` // 0 = unbounded
	MinDistinct      int           `yaml:"min_distinct" validate:"min=0"`
	DiversityFloor   int           `yaml:"diversity_floor" validate:"min=0"`
	Strict           bool          `yaml:"strict"`
	ConfirmThreshold int           `yaml:"confirm_threshold" validate:"min=1"`
	DecayWindow      time.Duration `yaml:"decay_window" validate:"min=0"`
	MinConfidence    float64       `yaml:"min_confidence" validate:"min=0,max=1"`
	Frequency        int           `yaml:"frequency" validate:"min=1"`
	Workers          int           `yaml:"workers" validate:"min=0"`
	Readers          []string      `yaml:"readers" validate:"min=1,dive,required"`
	PatchSize        string        `yaml:"patch_size" validate:"oneof=x-small small medium large x-large"`
	HalfSample       bool          `yaml:"half_sample"`
	CameraFacing     string        `yaml:"camera_facing" validate:"oneof=environment user"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            8080,
		LogDirectory:    filepath.Join(".", "logs"),
		StaticDirectory: filepath.Join(".", "static"),
		StorageBackend:  BackendAuto,
		DatabasePath:    filepath.Join(".", "data", "photos.db"),
		DataDirectory:   filepath.Join(".", "data", "photos"),
		ExportPrefix:    "barcode_photos",
		AppName:         "Barcode Photo Capture",
		AppVersion:      "1.0.0",
		MaxImageEdge:    1920,
		JPEGQuality:     85,
		Scanner: ScannerConfig{
			MinLength:        6,
			MaxLength:        50,
			MinDistinct:      3,
			DiversityFloor:   4,
			ConfirmThreshold: 3,
			DecayWindow:      2 * time.Second,
			MinConfidence:    0.8,
			Frequency:        10,
			Workers:          2,
			Readers:          []string{"code_128_reader", "ean_reader", "ean_8_reader", "code_39_reader", "upc_reader"},
			PatchSize:        "medium",
			HalfSample:       true,
			CameraFacing:     "environment",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if err := cfg.loadFile(getEnv("CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AuthEnabled reports whether the shell API requires a login.
func (c *Config) AuthEnabled() bool {
	return c.Password != "" || c.PasswordHash != ""
}

// Validate checks the struct tags of the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Password = getEnv("PASSWORD", c.Password)
	c.PasswordHash = getEnv("PASSWORD_HASH", c.PasswordHash)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.StaticDirectory = getEnv("STATIC_DIR", c.StaticDirectory)

	c.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", c.StorageBackend))
	c.NativeShell = getEnvAsBool("NATIVE_SHELL", c.NativeShell)
	c.DatabasePath = getEnv("DB_PATH", c.DatabasePath)
	c.DataDirectory = getEnv("DATA_DIR", c.DataDirectory)
	if mb := getEnvAsInt64("STORAGE_QUOTA_MB", -1); mb >= 0 {
		c.StorageQuotaBytes = mb << 20
	}

	c.ExportPrefix = getEnv("EXPORT_PREFIX", c.ExportPrefix)
	c.AppName = getEnv("APP_NAME", c.AppName)
	c.AppVersion = getEnv("APP_VERSION", c.AppVersion)

	c.MaxImageEdge = getEnvAsInt("MAX_IMAGE_EDGE", c.MaxImageEdge)
	c.JPEGQuality = getEnvAsInt("JPEG_QUALITY", c.JPEGQuality)
	c.StampOverlay = getEnvAsBool("STAMP_OVERLAY", c.StampOverlay)

	s := &c.Scanner
	s.MinLength = getEnvAsInt("SCAN_MIN_LENGTH", s.MinLength)
	s.MaxLength = getEnvAsInt("SCAN_MAX_LENGTH", s.MaxLength)
	s.MinDistinct = getEnvAsInt("SCAN_MIN_DISTINCT", s.MinDistinct)
	s.DiversityFloor = getEnvAsInt("SCAN_DIVERSITY_FLOOR", s.DiversityFloor)
	s.Strict = getEnvAsBool("SCAN_STRICT", s.Strict)
	s.ConfirmThreshold = getEnvAsInt("SCAN_CONFIRM_THRESHOLD", s.ConfirmThreshold)
	s.DecayWindow = getEnvAsDuration("SCAN_DECAY_WINDOW", s.DecayWindow)
	s.MinConfidence = getEnvAsFloat("SCAN_MIN_CONFIDENCE", s.MinConfidence)
	s.Frequency = getEnvAsInt("SCAN_FREQUENCY", s.Frequency)
	s.Workers = getEnvAsInt("SCAN_WORKERS", s.Workers)
	s.Readers = getEnvAsList("SCAN_READERS", s.Readers)
	s.PatchSize = getEnv("SCAN_PATCH_SIZE", s.PatchSize)
	s.HalfSample = getEnvAsBool("SCAN_HALF_SAMPLE", s.HalfSample)
	s.CameraFacing = getEnv("CAMERA_FACING", s.CameraFacing)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain milliseconds ("1500").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
