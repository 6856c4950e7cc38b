package config

import (
	"os"
	"strconv"
	"time"

	"neuropeaks/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig
	Paths   PathConfig
	Capture CaptureConfig
	Video   VideoConfig
	Clean   CleanConfig
	Log     LogConfig
}

// ServerConfig holds presentation API settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// PathConfig holds file system paths
type PathConfig struct {
	OutputDir            string // root of experiments/<exp>/<participant>/...
	ScreenshotCacheDir   string // per-run page capture directory name
	ScreenshotLibraryDir string // shared across experiments, optional
	ProfilesFile         string // YAML experiment profiles, optional
}

// CaptureConfig holds browser capture settings
type CaptureConfig struct {
	Attempts     int
	Timeout      time.Duration
	WindowWidth  int
	WindowHeight int
}

// VideoConfig holds frame extraction settings
type VideoConfig struct {
	FFprobeBin     string
	FFmpegBin      string
	SceneThreshold float64
}

// CleanConfig holds batch cleaning settings
type CleanConfig struct {
	Workers int64
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:  *loadServerConfig(),
		Paths:   *loadPathConfig(),
		Capture: *loadCaptureConfig(),
		Video:   *loadVideoConfig(),
		Clean:   CleanConfig{Workers: int64(getEnvIntOrDefault("CLEAN_WORKERS", 4))},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "INFO"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadPathConfig() *PathConfig {
	return &PathConfig{
		OutputDir:            getEnvOrDefault("OUTPUT_DIR", "experiments"),
		ScreenshotCacheDir:   getEnvOrDefault("SCREENSHOT_CACHE_DIR", "web_pages"),
		ScreenshotLibraryDir: getEnvOrDefault("SCREENSHOT_LIBRARY_DIR", ""),
		ProfilesFile:         getEnvOrDefault("PROFILES_FILE", ""),
	}
}

func loadCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		Attempts:     getEnvIntOrDefault("CAPTURE_ATTEMPTS", 5),
		Timeout:      getEnvDurationOrDefault("CAPTURE_TIMEOUT", 60*time.Second),
		WindowWidth:  getEnvIntOrDefault("CHROME_WINDOW_WIDTH", 1920),
		WindowHeight: getEnvIntOrDefault("CHROME_WINDOW_HEIGHT", 1080),
	}
}

func loadVideoConfig() *VideoConfig {
	return &VideoConfig{
		FFprobeBin:     getEnvOrDefault("FFPROBE_BIN", "ffprobe"),
		FFmpegBin:      getEnvOrDefault("FFMPEG_BIN", "ffmpeg"),
		SceneThreshold: getEnvFloatOrDefault("SCENE_THRESHOLD", 0.9),
	}
}

func validateConfig(config *Config) error {
	if config.Paths.OutputDir == "" {
		return errors.ConfigInvalid("output directory is required")
	}
	if config.Capture.Attempts < 1 {
		return errors.ConfigInvalid("CAPTURE_ATTEMPTS must be at least 1")
	}
	if config.Capture.Timeout <= 0 {
		return errors.ConfigInvalid("CAPTURE_TIMEOUT must be positive")
	}
	if config.Video.SceneThreshold <= 0 || config.Video.SceneThreshold > 1 {
		return errors.ConfigInvalid("SCENE_THRESHOLD must be in (0, 1]")
	}
	if config.Clean.Workers < 1 {
		return errors.ConfigInvalid("CLEAN_WORKERS must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
