package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Basketflow   BasketflowConfig   `yaml:"basketflow"`
	Server       ServerConfig       `yaml:"server"`
	Sources      SourcesConfig      `yaml:"sources"`
	Quality      QualityConfig      `yaml:"quality"`
	Cache        CacheConfig        `yaml:"cache"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Aggregator   AggregatorConfig   `yaml:"aggregator"`
	Basket       BasketClientConfig `yaml:"basket"`
	Publishing   PublishingConfig   `yaml:"publishing"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type BasketflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SourcesConfig declares every data source adapter the orchestrator
// registers at startup. Registration order is fallback order.
type SourcesConfig struct {
	Bloomberg BloombergConfig `yaml:"bloomberg"`
	Sma       SmaConfig       `yaml:"sma"`
	Binance   SourceConfig    `yaml:"binance"`
}

// SourceConfig carries the resilience knobs shared by all adapters.
type SourceConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	BatchLimit     int64                `yaml:"batch_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// BloombergConfig extends the shared source knobs with the simulated
// feed behaviour. Production and staging set failure_rate to 0 to
// disable failure injection.
type BloombergConfig struct {
	SourceConfig `yaml:",inline"`
	Latency      time.Duration `yaml:"latency"`
	FailureRate  float64       `yaml:"failure_rate"`
}

// SmaConfig extends the shared source knobs with the SMA adapter service
// endpoint details.
type SmaConfig struct {
	SourceConfig `yaml:",inline"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type CircuitBreakerConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	RecoveryTimeout     time.Duration `yaml:"recovery_timeout"`
	HalfOpenMaxRequests int           `yaml:"half_open_max_requests"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// QualityConfig holds the price validator thresholds.
type QualityConfig struct {
	MinPrice            string  `yaml:"min_price"`
	MaxPrice            string  `yaml:"max_price"`
	MaxSpreadPercentage float64 `yaml:"max_spread_percentage"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis
	TTLHigh       time.Duration `yaml:"ttl_high"`
	TTLMedium     time.Duration `yaml:"ttl_medium"`
	TTLLow        time.Duration `yaml:"ttl_low"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
}

type OrchestratorConfig struct {
	BatchConcurrency int           `yaml:"batch_concurrency"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
}

type AggregatorConfig struct {
	PriceTTL time.Duration `yaml:"price_ttl"`
}

type BasketClientConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
}

type PublishingConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	MaxAge         int           `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type MetricsConfig struct {
	Prometheus          bool   `yaml:"prometheus"`
	CloudWatchRegion    string `yaml:"cloudwatch_region"`
	CloudWatchNamespace string `yaml:"cloudwatch_namespace"`
}

// LoadConfig reads and validates the yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every knob set to a workable
// development value. LoadConfig overlays the yaml file on top of it.
func Default() *Config {
	src := SourceConfig{
		Enabled: true,
		Timeout: 10 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:       3,
			BaseDelay:         time.Second,
			MaxDelay:          10 * time.Second,
			BackoffMultiplier: 2,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:    5,
			RecoveryTimeout:     30 * time.Second,
			HalfOpenMaxRequests: 2,
		},
		BatchLimit: 5,
		ConnectionPool: ConnectionPoolConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 50,
			IdleConnTimeout: 90 * time.Second,
		},
	}

	return &Config{
		Basketflow: BasketflowConfig{Name: "basketflow", Version: "dev"},
		Server: ServerConfig{
			Port:           8083,
			RequestTimeout: 30 * time.Second,
		},
		Sources: SourcesConfig{
			Bloomberg: BloombergConfig{
				SourceConfig: src,
				Latency:      20 * time.Millisecond,
				FailureRate:  0.05,
			},
			Sma: SmaConfig{
				SourceConfig: src,
				BaseURL:      "http://localhost:8084/sma-adapter",
			},
			Binance: src,
		},
		Quality: QualityConfig{
			MinPrice:            "0.01",
			MaxPrice:            "1000000.00",
			MaxSpreadPercentage: 50.0,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			TTLHigh:       5 * time.Minute,
			TTLMedium:     2 * time.Minute,
			TTLLow:        time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			BatchConcurrency: 10,
			BatchTimeout:     time.Minute,
		},
		Aggregator: AggregatorConfig{PriceTTL: 5 * time.Minute},
		Basket: BasketClientConfig{
			BaseURL:           "http://localhost:8081",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 20,
			BurstSize:         5,
		},
		Publishing: PublishingConfig{
			Enabled: false,
			BaseURL: "http://localhost:8082",
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			MaxAge:         7,
			ReportInterval: 30 * time.Second,
		},
		Metrics: MetricsConfig{Prometheus: true},
	}
}

// Validate rejects configurations that would make the core misbehave at
// runtime rather than fail fast at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Orchestrator.BatchConcurrency < 1 {
		return fmt.Errorf("orchestrator batch_concurrency must be at least 1")
	}
	if c.Cache.TTLHigh <= 0 || c.Cache.TTLMedium <= 0 || c.Cache.TTLLow <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("redis cache backend requires redis_url")
	}
	if c.Quality.MaxSpreadPercentage <= 0 {
		return fmt.Errorf("quality max_spread_percentage must be positive")
	}
	if c.Aggregator.PriceTTL <= 0 {
		return fmt.Errorf("aggregator price_ttl must be positive")
	}
	if r := c.Sources.Bloomberg.FailureRate; r < 0 || r > 1 {
		return fmt.Errorf("source bloomberg: failure_rate %v out of range [0,1]", r)
	}
	for name, s := range map[string]SourceConfig{
		"bloomberg": c.Sources.Bloomberg.SourceConfig,
		"sma":       c.Sources.Sma.SourceConfig,
		"binance":   c.Sources.Binance,
	} {
		if !s.Enabled {
			continue
		}
		if s.Timeout <= 0 {
			return fmt.Errorf("source %s: timeout must be positive", name)
		}
		if s.BatchLimit < 1 {
			return fmt.Errorf("source %s: batch_limit must be at least 1", name)
		}
		if s.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("source %s: requests_per_second must be positive", name)
		}
		if s.CircuitBreaker.FailureThreshold < 1 {
			return fmt.Errorf("source %s: failure_threshold must be at least 1", name)
		}
	}
	return nil
}
