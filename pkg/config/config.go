package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete host monitor configuration
type Config struct {
	Device  DeviceConfig  `yaml:"device" json:"device"`
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DeviceConfig describes where dump files live on the device and how the
// transfer commands are bounded
type DeviceConfig struct {
	DumpDir    string        `yaml:"dumpDir" json:"dumpDir"`
	QueueFile  string        `yaml:"queueFile" json:"queueFile"`
	AdbPath    string        `yaml:"adbPath" json:"adbPath"`
	CmdTimeout time.Duration `yaml:"cmdTimeout" json:"cmdTimeout"`
}

// MonitorConfig holds discovery and transfer tuning
type MonitorConfig struct {
	LocalDir      string        `yaml:"localDir" json:"localDir"`
	UseLogcat     bool          `yaml:"useLogcat" json:"useLogcat"`
	PollInterval  time.Duration `yaml:"pollInterval" json:"pollInterval"`
	PullWorkers   int           `yaml:"pullWorkers" json:"pullWorkers"`
	StatsInterval time.Duration `yaml:"statsInterval" json:"statsInterval"`
	MaxRetries    int           `yaml:"maxRetries" json:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay" json:"retryDelay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig Default configuration values
var DefaultConfig = Config{
	Device: DeviceConfig{
		DumpDir:    "/data/vendor/audio_dump",
		QueueFile:  "/data/vendor/audio_dump/.queue",
		AdbPath:    "adb",
		CmdTimeout: 30 * time.Second,
	},
	Monitor: MonitorConfig{
		LocalDir:      "./audio_dumps",
		UseLogcat:     true,
		PollInterval:  10 * time.Second,
		PullWorkers:   2,
		StatsInterval: 60 * time.Second,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
	},
	Logging: LoggingConfig{
		Level: "INFO",
		File:  "audiodump-monitor.log",
	},
}

// Load loads configuration in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file at path (skipped if path is empty or missing)
// 3. Default values (lowest precedence)
func Load(path string) (*Config, error) {
	config := DefaultConfig

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	loadFromEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	if val := os.Getenv("AUDIODUMP_DEVICE_DUMP_DIR"); val != "" {
		config.Device.DumpDir = val
	}
	if val := os.Getenv("AUDIODUMP_DEVICE_QUEUE_FILE"); val != "" {
		config.Device.QueueFile = val
	}
	if val := os.Getenv("AUDIODUMP_ADB_PATH"); val != "" {
		config.Device.AdbPath = val
	}
	if val := os.Getenv("AUDIODUMP_CMD_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			config.Device.CmdTimeout = timeout
		}
	}
	if val := os.Getenv("AUDIODUMP_LOCAL_DIR"); val != "" {
		config.Monitor.LocalDir = val
	}
	if val := os.Getenv("AUDIODUMP_USE_LOGCAT"); val != "" {
		config.Monitor.UseLogcat = val == "true" || val == "1"
	}
	if val := os.Getenv("AUDIODUMP_POLL_INTERVAL"); val != "" {
		if interval, err := time.ParseDuration(val); err == nil {
			config.Monitor.PollInterval = interval
		}
	}
	if val := os.Getenv("AUDIODUMP_PULL_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil {
			config.Monitor.PullWorkers = workers
		}
	}
	if val := os.Getenv("AUDIODUMP_STATS_INTERVAL"); val != "" {
		if interval, err := time.ParseDuration(val); err == nil {
			config.Monitor.StatsInterval = interval
		}
	}
	if val := os.Getenv("AUDIODUMP_MAX_RETRIES"); val != "" {
		if retries, err := strconv.Atoi(val); err == nil {
			config.Monitor.MaxRetries = retries
		}
	}
	if val := os.Getenv("AUDIODUMP_RETRY_DELAY"); val != "" {
		if delay, err := time.ParseDuration(val); err == nil {
			config.Monitor.RetryDelay = delay
		}
	}
	if val := os.Getenv("AUDIODUMP_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("AUDIODUMP_LOG_FILE"); val != "" {
		config.Logging.File = val
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Device.DumpDir == "" {
		return fmt.Errorf("device dump directory required")
	}
	if c.Device.QueueFile == "" {
		return fmt.Errorf("device queue file required")
	}
	if c.Device.CmdTimeout <= 0 {
		return fmt.Errorf("invalid command timeout: %v", c.Device.CmdTimeout)
	}
	if c.Monitor.LocalDir == "" {
		return fmt.Errorf("local save directory required")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", c.Monitor.PollInterval)
	}
	if c.Monitor.PullWorkers < 1 {
		return fmt.Errorf("invalid pull worker count: %d", c.Monitor.PullWorkers)
	}
	if c.Monitor.StatsInterval <= 0 {
		return fmt.Errorf("invalid stats interval: %v", c.Monitor.StatsInterval)
	}
	if c.Monitor.MaxRetries < 1 {
		return fmt.Errorf("invalid max retries: %d", c.Monitor.MaxRetries)
	}
	if c.Monitor.RetryDelay < 0 {
		return fmt.Errorf("invalid retry delay: %v", c.Monitor.RetryDelay)
	}

	validLevels := map[string]bool{
		"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// ToYAML serializes the configuration
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// SaveToFile writes the configuration to path
func (c *Config) SaveToFile(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// GenerateDefaultConfig creates a default configuration file
func GenerateDefaultConfig(path string) error {
	config := DefaultConfig
	return config.SaveToFile(path)
}
