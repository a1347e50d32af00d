// Package config provides configuration management for the colflow optimizer
// and vectorized runtime
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/paveg/colflow/internal/partition"
)

// Config represents the global configuration for lowering and execution
type Config struct {
	// Vectorized Runtime Configuration
	Threads         int     `json:"threads" yaml:"threads"`                     // Number of workers (0 = hardware concurrency)
	Partitioning    string  `json:"partitioning" yaml:"partitioning"`           // Load partitioning policy name
	ChunkParam      int     `json:"chunk_param" yaml:"chunk_param"`             // Minimum chunk granularity in rows
	BatchSize       int     `json:"batch_size" yaml:"batch_size"`               // Rows per pipeline invocation inside a task
	DeviceTaskRatio float64 `json:"device_task_ratio" yaml:"device_task_ratio"` // Share of rows handed to device workers
	QueueCapacity   int     `json:"queue_capacity" yaml:"queue_capacity"`       // Task queue bound (0 = unbounded)

	// Distributed Configuration
	DistributedWorkers int `json:"distributed_workers" yaml:"distributed_workers"` // Number of in-process distributed workers

	// Optimizer Configuration
	SelectionPushdown    bool `json:"selection_pushdown" yaml:"selection_pushdown"`         // Enable selection pushdown through joins
	RangeFusion          bool `json:"range_fusion" yaml:"range_fusion"`                     // Enable range fusion into between
	ProjectionPathFusion bool `json:"projection_path_fusion" yaml:"projection_path_fusion"` // Enable projection path fusion
	MaxRewriteIterations int  `json:"max_rewrite_iterations" yaml:"max_rewrite_iterations"` // Sweeps per pass before giving up
	VerifyRewrites       bool `json:"verify_rewrites" yaml:"verify_rewrites"`               // Verify the graph after every rewrite

	// Debugging Configuration
	LogLevel          string `json:"log_level" yaml:"log_level"`                   // debug, info, warn or error
	VerboseLogging    bool   `json:"verbose_logging" yaml:"verbose_logging"`       // Log every executed task
	MetricsCollection bool   `json:"metrics_collection" yaml:"metrics_collection"` // Enable prometheus metrics
	MetricsAddr       string `json:"metrics_addr" yaml:"metrics_addr"`             // Listen address of the metrics endpoint
}

// SystemInfo contains system information for configuration validation
type SystemInfo struct {
	CPUCount     int
	Architecture string
	OSType       string
}

// ConfigValidator validates and provides recommendations for configuration
type ConfigValidator struct {
	systemInfo SystemInfo
}

// Global configuration instance
var (
	globalConfig Config
	configMutex  sync.RWMutex
)

// Default configuration values
const (
	DefaultPartitioning         = "STATIC"
	DefaultChunkParam           = 1
	DefaultBatchSize            = 100
	DefaultDeviceTaskRatio      = 0.6
	DefaultDistributedWorkers   = 2
	DefaultMaxRewriteIterations = 32
	DefaultLogLevel             = "info"
	DefaultMetricsAddr          = ":9090"

	// FallbackThreads is used when the hardware concurrency cannot be
	// determined.
	FallbackThreads = 32
)

// Initialize global configuration with defaults
func init() {
	globalConfig = NewConfig()
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		// Runtime defaults
		Threads:         0, // Auto-detect
		Partitioning:    DefaultPartitioning,
		ChunkParam:      DefaultChunkParam,
		BatchSize:       DefaultBatchSize,
		DeviceTaskRatio: DefaultDeviceTaskRatio,
		QueueCapacity:   0, // Unbounded

		DistributedWorkers: DefaultDistributedWorkers,

		// Optimizer defaults (enabled)
		SelectionPushdown:    true,
		RangeFusion:          true,
		ProjectionPathFusion: true,
		MaxRewriteIterations: DefaultMaxRewriteIterations,
		VerifyRewrites:       false,

		// Debugging defaults (disabled)
		LogLevel:          DefaultLogLevel,
		VerboseLogging:    false,
		MetricsCollection: false,
		MetricsAddr:       DefaultMetricsAddr,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("Threads must be non-negative, got %d", c.Threads)
	}

	if _, err := partition.ParsePolicy(c.Partitioning); err != nil {
		return fmt.Errorf("Partitioning: %w", err)
	}

	if c.ChunkParam <= 0 {
		return fmt.Errorf("ChunkParam must be positive, got %d", c.ChunkParam)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("BatchSize must be positive, got %d", c.BatchSize)
	}

	if c.DeviceTaskRatio < 0.0 || c.DeviceTaskRatio > 1.0 {
		return fmt.Errorf("DeviceTaskRatio must be between 0 and 1, got %f", c.DeviceTaskRatio)
	}

	if c.QueueCapacity < 0 {
		return fmt.Errorf("QueueCapacity must be non-negative, got %d", c.QueueCapacity)
	}

	if c.DistributedWorkers <= 0 {
		return fmt.Errorf("DistributedWorkers must be positive, got %d", c.DistributedWorkers)
	}

	if c.MaxRewriteIterations <= 0 {
		return fmt.Errorf("MaxRewriteIterations must be positive, got %d", c.MaxRewriteIterations)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LogLevel must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	// Apply defaults for zero values
	if c.Partitioning == "" {
		c.Partitioning = defaults.Partitioning
	}
	if c.ChunkParam == 0 {
		c.ChunkParam = defaults.ChunkParam
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.DistributedWorkers == 0 {
		c.DistributedWorkers = defaults.DistributedWorkers
	}
	if c.MaxRewriteIterations == 0 {
		c.MaxRewriteIterations = defaults.MaxRewriteIterations
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaults.MetricsAddr
	}

	// Note: Boolean fields are intentionally not set to defaults here
	// This allows distinguishing between explicitly set false and unset values
	// Use NewConfig() directly if you need boolean defaults

	return c
}

// ResolveThreads returns the worker count: the configured value when set,
// otherwise the hardware concurrency, otherwise FallbackThreads.
func (c *Config) ResolveThreads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return FallbackThreads
}

// Policy returns the parsed partitioning policy. Invalid names fall back to
// static partitioning; Validate reports them.
func (c *Config) Policy() partition.Policy {
	p, err := partition.ParsePolicy(c.Partitioning)
	if err != nil {
		return partition.Static
	}
	return p
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = config
}

// GetGlobalConfig returns the current global configuration
func GetGlobalConfig() Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	config := NewConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Keys absent from
// the file keep their NewConfig defaults.
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	config := NewConfig()
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		return LoadFromJSON(data)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() Config {
	return ApplyEnv(NewConfig())
}

// ApplyEnv overrides fields of config with the COLFLOW_* environment
// variables that are set and parse.
func ApplyEnv(config Config) Config {
	if val := os.Getenv("COLFLOW_THREADS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Threads = parsed
		}
	}

	if val := os.Getenv("COLFLOW_PARTITIONING"); val != "" {
		config.Partitioning = strings.ToUpper(val)
	}

	if val := os.Getenv("COLFLOW_CHUNK_PARAM"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.ChunkParam = parsed
		}
	}

	if val := os.Getenv("COLFLOW_BATCH_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.BatchSize = parsed
		}
	}

	if val := os.Getenv("COLFLOW_DEVICE_TASK_RATIO"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.DeviceTaskRatio = parsed
		}
	}

	if val := os.Getenv("COLFLOW_DISTRIBUTED_WORKERS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.DistributedWorkers = parsed
		}
	}

	if val := os.Getenv("COLFLOW_SELECTION_PUSHDOWN"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.SelectionPushdown = parsed
		}
	}

	if val := os.Getenv("COLFLOW_RANGE_FUSION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.RangeFusion = parsed
		}
	}

	if val := os.Getenv("COLFLOW_PROJECTION_PATH_FUSION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.ProjectionPathFusion = parsed
		}
	}

	if val := os.Getenv("COLFLOW_LOG_LEVEL"); val != "" {
		config.LogLevel = strings.ToLower(val)
	}

	if val := os.Getenv("COLFLOW_VERBOSE_LOGGING"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.VerboseLogging = parsed
		}
	}

	if val := os.Getenv("COLFLOW_METRICS_COLLECTION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.MetricsCollection = parsed
		}
	}

	return config
}

// GetSystemInfo returns system information for configuration validation
func GetSystemInfo() SystemInfo {
	return SystemInfo{
		CPUCount:     runtime.NumCPU(),
		Architecture: runtime.GOARCH,
		OSType:       runtime.GOOS,
	}
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		systemInfo: GetSystemInfo(),
	}
}

// Validate validates a configuration and provides recommendations. The
// returned configuration has the thread count resolved.
func (cv *ConfigValidator) Validate(config Config) (Config, []string, error) {
	var warnings []string
	validated := config

	// Basic validation
	if err := config.Validate(); err != nil {
		return Config{}, warnings, err
	}

	if config.Threads > cv.systemInfo.CPUCount*2 {
		warnings = append(warnings,
			fmt.Sprintf("Thread count (%d) exceeds 2x CPU count (%d), may cause contention",
				config.Threads, cv.systemInfo.CPUCount))
	}

	if config.QueueCapacity > 0 && config.QueueCapacity < config.ResolveThreads() {
		warnings = append(warnings,
			fmt.Sprintf("Queue capacity (%d) is below the worker count (%d), producers will block often",
				config.QueueCapacity, config.ResolveThreads()))
	}

	// Auto-adjust unset values
	if config.Threads == 0 {
		validated.Threads = validated.ResolveThreads()
	}

	return validated, warnings, nil
}

// TuneForRows adapts batch size and thread count to an input of the given
// size so that small inputs are not spread over idle workers.
func (c Config) TuneForRows(rows int) Config {
	threads := c.ResolveThreads()
	if rows > 0 && rows < threads*c.ChunkParam {
		c.Threads = max(1, rows/max(1, c.ChunkParam))
	}
	if rows >= 1_000_000 && c.BatchSize < 1000 {
		c.BatchSize = 1000
	}
	return c
}
