package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PairPilot/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Logging struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		TimeFormat string `yaml:"time_format"`
		Collector  struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Selections string `yaml:"selections"`
			Outcomes   string `yaml:"outcomes"`
			Logs       string `yaml:"logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		DiscoveryWindow  time.Duration `yaml:"discovery_window"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Universe   UniverseConfig   `yaml:"universe"`
	Analyzers  AnalyzersConfig  `yaml:"analyzers"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Selection  SelectionConfig  `yaml:"selection"`
	Advisory   AdvisoryConfig   `yaml:"advisory"`
	Thompson   ThompsonConfig   `yaml:"thompson"`
	Tracker    struct {
		HistoryPath string `yaml:"history_path"`
	} `yaml:"tracker"`
	Scheduler struct {
		Interval        time.Duration `yaml:"interval"`
		RunOnStart      *bool         `yaml:"run_on_start"`
		LearningMaxWait time.Duration `yaml:"learning_max_wait"`
	} `yaml:"scheduler"`
	Execution struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"execution"`
}

// UniverseConfig drives the universe cache and discovery filter.
type UniverseConfig struct {
	CacheKey         string   `yaml:"cache_key"`
	CacheTTLHours    float64  `yaml:"cache_ttl_hours"`
	WhitelistEnabled *bool    `yaml:"whitelist_enabled"`
	Whitelist        []string `yaml:"whitelist"`
	AutoAdd          bool     `yaml:"auto_add_to_whitelist"`
	Discovery        struct {
		MinVolume24h      float64 `yaml:"min_volume_24h"`
		MinAgeDays        float64 `yaml:"min_age_days"`
		MaxSpreadBps      float64 `yaml:"max_spread_bps"`
		MinDepthUSD       float64 `yaml:"min_depth_usd"`
		MinVenues         int     `yaml:"min_venues"`
		MaxSuspicionScore float64 `yaml:"max_suspicion_score"`
	} `yaml:"discovery"`
}

// WhitelistMode reports whether whitelist mode is on (the default).
func (u UniverseConfig) WhitelistMode() bool {
	return u.WhitelistEnabled == nil || *u.WhitelistEnabled
}

// AnalyzersConfig configures the statistical analyzers.
type AnalyzersConfig struct {
	Sortino struct {
		Windows []int     `yaml:"windows"`
		Weights []float64 `yaml:"weights"`
		MAR     float64   `yaml:"mar"`
	} `yaml:"sortino"`
	Correlation struct {
		Threshold    float64 `yaml:"threshold"`
		LookbackDays int     `yaml:"lookback_days"`
	} `yaml:"correlation"`
	GARCH struct {
		P                   int     `yaml:"p"`
		Q                   int     `yaml:"q"`
		LookbackDays        int     `yaml:"lookback_days"`
		HorizonDays         int     `yaml:"horizon_days"`
		AnnualizationFactor float64 `yaml:"annualization_factor"`
	} `yaml:"garch"`
}

// AggregatorConfig holds the composite weights keyed by component name.
type AggregatorConfig struct {
	Weights map[string]float64 `yaml:"weights"`
}

// SelectionConfig drives the pipeline.
type SelectionConfig struct {
	TargetCount        int     `yaml:"target_count"`
	OversamplingFactor float64 `yaml:"oversampling_factor"`
	Granularity        string  `yaml:"granularity"`
	ScoringWorkers     int     `yaml:"scoring_workers"`
}

// ProviderConfig describes one advisory provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"`
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	RPS         float64       `yaml:"rps"`
	Burst       int           `yaml:"burst"`
}

// AdvisoryConfig lists the advisory panel.
type AdvisoryConfig struct {
	Providers         []ProviderConfig `yaml:"providers"`
	ReasoningProvider string           `yaml:"reasoning_provider"`
	QueryTimeout      time.Duration    `yaml:"query_timeout"`
}

// ThompsonConfig configures the Bayesian weight optimizer.
type ThompsonConfig struct {
	StatePath        string  `yaml:"state_path"`
	MinTrades        int     `yaml:"min_trades"`
	SuccessThreshold float64 `yaml:"success_threshold"`
	FailureThreshold float64 `yaml:"failure_threshold"`
	LearningRate     float64 `yaml:"learning_rate"`
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads a .env file when present, then config from YAML, then
// overrides selected fields with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SELECTION_TARGET_COUNT"); v != "" {
		c.Selection.TargetCount = util.ParseIntDefault(v, c.Selection.TargetCount)
	}
	for i := range c.Advisory.Providers {
		p := &c.Advisory.Providers[i]
		if p.APIKeyEnv == "" {
			continue
		}
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			p.APIKey = v
		}
	}
}

// ApplyDefaults fills zero values with the engine defaults.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Kafka.Topics.Selections == "" {
		c.Kafka.Topics.Selections = "pairpilot.selections"
	}
	if c.Kafka.Topics.Outcomes == "" {
		c.Kafka.Topics.Outcomes = "pairpilot.trade_outcomes"
	}
	if c.Kafka.Topics.Logs == "" {
		c.Kafka.Topics.Logs = "pairpilot.logs"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "pairpilot"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "pairpilot"
	}
	if c.ClickHouse.DiscoveryWindow == 0 {
		c.ClickHouse.DiscoveryWindow = 7 * 24 * time.Hour
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "pairpilot"
	}

	u := &c.Universe
	if u.CacheKey == "" {
		u.CacheKey = "default"
	}
	if u.CacheTTLHours == 0 {
		u.CacheTTLHours = 24
	}

	a := &c.Analyzers
	if len(a.Sortino.Windows) == 0 {
		a.Sortino.Windows = []int{7, 30, 90}
	}
	if len(a.Sortino.Weights) == 0 && len(a.Sortino.Windows) == 3 {
		a.Sortino.Weights = []float64{0.2, 0.3, 0.5}
	}
	if a.Correlation.Threshold == 0 {
		a.Correlation.Threshold = 0.7
	}
	if a.Correlation.LookbackDays == 0 {
		a.Correlation.LookbackDays = 30
	}
	if a.GARCH.P == 0 {
		a.GARCH.P = 1
	}
	if a.GARCH.Q == 0 {
		a.GARCH.Q = 1
	}
	if a.GARCH.LookbackDays == 0 {
		a.GARCH.LookbackDays = 90
	}
	if a.GARCH.HorizonDays == 0 {
		a.GARCH.HorizonDays = 7
	}
	if a.GARCH.AnnualizationFactor == 0 {
		a.GARCH.AnnualizationFactor = 365
	}

	if c.Aggregator.Weights == nil {
		c.Aggregator.Weights = map[string]float64{
			"sortino":         0.4,
			"diversification": 0.3,
			"volatility":      0.3,
		}
	}

	s := &c.Selection
	if s.TargetCount == 0 {
		s.TargetCount = 5
	}
	if s.OversamplingFactor == 0 {
		s.OversamplingFactor = 2
	}
	if s.Granularity == "" {
		s.Granularity = "1d"
	}
	if s.ScoringWorkers == 0 {
		s.ScoringWorkers = 4
	}

	if c.Advisory.QueryTimeout == 0 {
		c.Advisory.QueryTimeout = 60 * time.Second
	}

	t := &c.Thompson
	if t.StatePath == "" {
		t.StatePath = "data/thompson_weights.json"
	}
	if t.MinTrades == 0 {
		t.MinTrades = 3
	}
	if t.SuccessThreshold == 0 {
		t.SuccessThreshold = 0.55
	}
	if t.FailureThreshold == 0 {
		t.FailureThreshold = 0.45
	}
	if t.LearningRate == 0 {
		t.LearningRate = 1
	}

	if c.Tracker.HistoryPath == "" {
		c.Tracker.HistoryPath = "data/selection_history.json"
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Hour
	}
	if c.Scheduler.LearningMaxWait == 0 {
		c.Scheduler.LearningMaxWait = 72 * time.Hour
	}
	if c.Execution.Timeout == 0 {
		c.Execution.Timeout = 10 * time.Second
	}
}

// RunOnStart reports whether the scheduler fires immediately (the default).
func (c *Config) RunOnStart() bool {
	return c.Scheduler.RunOnStart == nil || *c.Scheduler.RunOnStart
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return invalid("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return invalid("redis.host is required when redis is enabled")
	}

	if c.Universe.CacheTTLHours <= 0 {
		return invalid("universe.cache_ttl_hours must be > 0, got %v", c.Universe.CacheTTLHours)
	}
	if c.Universe.WhitelistMode() && len(c.Universe.Whitelist) == 0 {
		return invalid("universe.whitelist cannot be empty in whitelist mode")
	}

	if err := validateSortino(c.Analyzers); err != nil {
		return err
	}
	if th := c.Analyzers.Correlation.Threshold; th <= 0 || th > 1 {
		return invalid("analyzers.correlation.threshold must be in (0,1], got %v", th)
	}
	g := c.Analyzers.GARCH
	if g.P < 1 || g.Q < 1 {
		return invalid("analyzers.garch order must be >= 1, got (%d,%d)", g.P, g.Q)
	}
	if g.HorizonDays < 1 || g.LookbackDays < 1 {
		return invalid("analyzers.garch lookback and horizon must be >= 1")
	}
	if err := validateAggregatorWeights(c.Aggregator.Weights); err != nil {
		return err
	}

	if c.Selection.TargetCount < 1 {
		return invalid("selection.target_count must be >= 1, got %d", c.Selection.TargetCount)
	}
	if c.Selection.OversamplingFactor < 1 {
		return invalid("selection.oversampling_factor must be >= 1, got %v", c.Selection.OversamplingFactor)
	}

	seen := map[string]bool{}
	for _, p := range c.Advisory.Providers {
		if p.Name == "" {
			return invalid("advisory provider name is required")
		}
		if seen[p.Name] {
			return invalid("advisory provider %q is declared twice", p.Name)
		}
		seen[p.Name] = true
		switch p.Kind {
		case "claude", "openai", "deepseek", "local":
		default:
			return invalid("advisory provider %q has unknown kind %q", p.Name, p.Kind)
		}
	}
	if rp := c.Advisory.ReasoningProvider; rp != "" && !seen[rp] {
		return invalid("advisory.reasoning_provider %q is not a declared provider", rp)
	}

	t := c.Thompson
	if t.MinTrades < 1 {
		return invalid("thompson.min_trades must be >= 1")
	}
	if t.LearningRate <= 0 {
		return invalid("thompson.learning_rate must be > 0")
	}
	if t.FailureThreshold > t.SuccessThreshold {
		return invalid("thompson.failure_threshold (%v) must be <= success_threshold (%v)", t.FailureThreshold, t.SuccessThreshold)
	}
	if c.Scheduler.Interval <= 0 {
		return invalid("scheduler.interval must be > 0")
	}
	return nil
}

func validateSortino(a AnalyzersConfig) error {
	s := a.Sortino
	if len(s.Windows) == 0 {
		return invalid("analyzers.sortino.windows cannot be empty")
	}
	if len(s.Windows) != len(s.Weights) {
		return invalid("analyzers.sortino has %d windows but %d weights", len(s.Windows), len(s.Weights))
	}
	sum := 0.0
	for i, w := range s.Weights {
		if w < 0 {
			return invalid("analyzers.sortino.weights[%d] is negative", i)
		}
		if s.Windows[i] < 2 {
			return invalid("analyzers.sortino.windows[%d] must be >= 2 days", i)
		}
		sum += w
	}
	if sum == 0 {
		return invalid("analyzers.sortino.weights cannot all be zero")
	}
	return nil
}

func validateAggregatorWeights(w map[string]float64) error {
	sum := 0.0
	for _, k := range []string{"sortino", "diversification", "volatility"} {
		v, ok := w[k]
		if !ok {
			return invalid("aggregator.weights.%s is required", k)
		}
		if v < 0 {
			return invalid("aggregator.weights.%s is negative", k)
		}
		sum += v
	}
	if sum == 0 {
		return invalid("aggregator.weights cannot all be zero")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
