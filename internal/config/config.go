package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// FallbackCommissionRate applies when no rate is configured anywhere,
	// not even a global default in the config file.
	FallbackCommissionRate = 70.0
)

// Config is the complete application configuration. Core services receive
// their sections as plain values at construction time so they stay pure
// functions of explicit inputs.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	Commission CommissionConfig `yaml:"commission"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Sweep      SweepConfig      `yaml:"sweep"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// URL returns the pgx connection string, honouring a DATABASE_URL override.
func (d DatabaseConfig) URL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// RabbitMQConfig holds the broker connection and exchange names for the
// fire-and-forget notification and distribution event streams.
type RabbitMQConfig struct {
	URL                  string `yaml:"url"`
	NotifyExchange       string `yaml:"notify_exchange"`
	DistributionExchange string `yaml:"distribution_exchange"`
}

// BrokerURL honours a RABBITMQ_URL override.
func (r RabbitMQConfig) BrokerURL() string {
	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		return url
	}
	return r.URL
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// CommissionConfig holds the global commission default. Service and tier
// overrides live in the database; this is the last level of the cascade.
type CommissionConfig struct {
	DefaultRate float64 `yaml:"default_rate"`
}

// DispatchConfig holds the automatic-assignment scoring knobs.
type DispatchConfig struct {
	ProximityWeight   float64            `yaml:"proximity_weight"`
	FamiliarityWeight float64            `yaml:"familiarity_weight"`
	RatingWeight      float64            `yaml:"rating_weight"`
	TierWeight        float64            `yaml:"tier_weight"`
	LoadWeight        float64            `yaml:"load_weight"`
	PriorityBonus     float64            `yaml:"priority_bonus"`
	MinRating         float64            `yaml:"min_rating"`
	TierScores        map[string]float64 `yaml:"tier_scores"`
}

// SweepConfig holds the background auto-assignment pass settings.
type SweepConfig struct {
	Interval    time.Duration `yaml:"interval"`
	GracePeriod time.Duration `yaml:"grace_period"`
	BatchSize   int           `yaml:"batch_size"`
}

// Load reads and parses the configuration file, then fills in defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

// Default returns a Config with every default applied, for tests and tools
// that run without a config file.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.RabbitMQ.NotifyExchange == "" {
		c.RabbitMQ.NotifyExchange = "atria.notify"
	}
	if c.RabbitMQ.DistributionExchange == "" {
		c.RabbitMQ.DistributionExchange = "atria.distribution"
	}
	if c.Commission.DefaultRate == 0 {
		c.Commission.DefaultRate = FallbackCommissionRate
	}
	if c.Dispatch.ProximityWeight == 0 && c.Dispatch.FamiliarityWeight == 0 &&
		c.Dispatch.RatingWeight == 0 && c.Dispatch.TierWeight == 0 && c.Dispatch.LoadWeight == 0 {
		c.Dispatch.ProximityWeight = 0.30
		c.Dispatch.FamiliarityWeight = 0.25
		c.Dispatch.RatingWeight = 0.20
		c.Dispatch.TierWeight = 0.15
		c.Dispatch.LoadWeight = 0.10
	}
	if c.Dispatch.PriorityBonus == 0 {
		c.Dispatch.PriorityBonus = 10
	}
	if c.Dispatch.MinRating == 0 {
		c.Dispatch.MinRating = 3.0
	}
	if c.Dispatch.TierScores == nil {
		c.Dispatch.TierScores = map[string]float64{
			"bronze":   55,
			"silver":   70,
			"gold":     85,
			"platinum": 100,
		}
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 5 * time.Minute
	}
	if c.Sweep.GracePeriod == 0 {
		c.Sweep.GracePeriod = 30 * time.Minute
	}
	if c.Sweep.BatchSize == 0 {
		c.Sweep.BatchSize = 20
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Commission.DefaultRate < 0 || c.Commission.DefaultRate > 100 {
		return fmt.Errorf("invalid commission default rate: %.2f (must be between 0 and 100)", c.Commission.DefaultRate)
	}

	weights := c.Dispatch.ProximityWeight + c.Dispatch.FamiliarityWeight +
		c.Dispatch.RatingWeight + c.Dispatch.TierWeight + c.Dispatch.LoadWeight
	if math.Abs(weights-1.0) > 0.001 {
		return fmt.Errorf("dispatch scoring weights must sum to 1.0, got %.3f", weights)
	}

	if c.Dispatch.MinRating < 0 || c.Dispatch.MinRating > 5 {
		return fmt.Errorf("invalid min rating: %.2f (must be between 0 and 5)", c.Dispatch.MinRating)
	}

	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("sweep batch size must be positive, got %d", c.Sweep.BatchSize)
	}
	if c.Sweep.GracePeriod <= 0 {
		return fmt.Errorf("sweep grace period must be positive, got %s", c.Sweep.GracePeriod)
	}

	return nil
}
