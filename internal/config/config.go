package config

import (
	"fmt"
	"os"
	"time"

	"favsync/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// SentinelFavid marks the catch-all "no favorite list" entry. The producer
	// never polls it; it only supplies the default download path for ad-hoc
	// submissions.
	SentinelFavid = "-1"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig                  `yaml:"server"`
	Database      DatabaseConfig                `yaml:"database"`
	RabbitMQ      RabbitMQConfig                `yaml:"rabbitmq"`
	Logging       LoggingConfig                 `yaml:"logging"`
	App           AppConfig                     `yaml:"app"`
	Sync          SyncConfig                    `yaml:"sync"`
	Downloader    DownloaderConfig              `yaml:"downloader"`
	Credential    CredentialConfig              `yaml:"credential"`
	FavoriteLists map[string]FavoriteListConfig `yaml:"favorite_lists"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds task store configuration. Driver selects the store
// backend: "postgres" for production, "memory" for throwaway setups.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds the lifecycle event exchange configuration. When
// disabled, status transition events are dropped instead of published.
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// SyncConfig holds the job lifecycle engine configuration
type SyncConfig struct {
	Interval           time.Duration   `yaml:"interval"`
	PollInterval       time.Duration   `yaml:"poll_interval"`
	TaskTimeout        time.Duration   `yaml:"task_timeout"`
	RequestTimeout     time.Duration   `yaml:"request_timeout"`
	MaxConcurrentTasks int             `yaml:"max_concurrent_tasks"`
	MaxRetries         int             `yaml:"max_retries"`
	Reconcile          ReconcileConfig `yaml:"reconcile"`
}

// ReconcileConfig controls the background sweep that repairs state drift.
// Trigger conditions stay configurable.
type ReconcileConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	PruneStale bool          `yaml:"prune_stale"`
}

// DownloaderConfig selects the external download tool
type DownloaderConfig struct {
	Binary string `yaml:"binary"`
}

// CredentialConfig holds the catalog/download backend cookie credential
type CredentialConfig struct {
	Sessdata    string `yaml:"sessdata"`
	BiliJct     string `yaml:"bili_jct"`
	Buvid3      string `yaml:"buvid3"`
	Dedeuserid  string `yaml:"dedeuserid"`
	AcTimeValue string `yaml:"ac_time_value"`
}

// FavoriteListConfig maps one favorite list to its download destination and
// optional postprocess chain
type FavoriteListConfig struct {
	Fid         string                     `yaml:"fid"`
	Path        string                     `yaml:"path"`
	Name        string                     `yaml:"name"`
	Postprocess []domain.PostprocessAction `yaml:"postprocess"`
}

// Load reads and parses the configuration file
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

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 120 * time.Second
	}
	if c.Sync.PollInterval <= 0 {
		c.Sync.PollInterval = time.Second
	}
	if c.Sync.TaskTimeout <= 0 {
		c.Sync.TaskTimeout = 300 * time.Second
	}
	if c.Sync.RequestTimeout <= 0 {
		c.Sync.RequestTimeout = 30 * time.Second
	}
	if c.Sync.MaxConcurrentTasks <= 0 {
		c.Sync.MaxConcurrentTasks = 3
	}
	if c.Sync.MaxRetries <= 0 {
		c.Sync.MaxRetries = 5
	}
	if c.Sync.Reconcile.Interval <= 0 {
		c.Sync.Reconcile.Interval = 300 * time.Second
	}
	if c.Downloader.Binary == "" {
		c.Downloader.Binary = "yutto"
	}

	if c.FavoriteLists == nil {
		c.FavoriteLists = make(map[string]FavoriteListConfig)
	}
	// The sentinel entry always exists so ad-hoc submissions have a home.
	if _, ok := c.FavoriteLists[SentinelFavid]; !ok {
		c.FavoriteLists[SentinelFavid] = FavoriteListConfig{Fid: SentinelFavid, Path: "sync/"}
	}
	for key, fl := range c.FavoriteLists {
		if fl.Fid == "" {
			fl.Fid = key
			c.FavoriteLists[key] = fl
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "memory":
		// No connection settings needed.
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	for key, fl := range c.FavoriteLists {
		if fl.Path == "" {
			return fmt.Errorf("favorite list %q has no download path", key)
		}
		for _, action := range fl.Postprocess {
			if err := action.Validate(); err != nil {
				return fmt.Errorf("favorite list %q: %w", key, err)
			}
		}
	}

	return nil
}

// FavoriteList resolves the configuration of one favorite list, falling back
// to the sentinel entry for unknown ids.
func (c *Config) FavoriteList(favid string) FavoriteListConfig {
	if fl, ok := c.FavoriteLists[favid]; ok {
		return fl
	}
	return c.FavoriteLists[SentinelFavid]
}

// PolledFavids returns the favorite list ids the producer should poll,
// excluding the sentinel entry.
func (c *Config) PolledFavids() []string {
	favids := make([]string, 0, len(c.FavoriteLists))
	for key := range c.FavoriteLists {
		if key == SentinelFavid {
			continue
		}
		favids = append(favids, key)
	}
	return favids
}
