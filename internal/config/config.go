// Package config loads the rdocs configuration. Values come from, in order of
// precedence, environment variables, an optional HCL file and built-in
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/rdocs/pkg/notifications/backends"
	"github.com/hashicorp-forge/rdocs/pkg/redisconn"
)

// Search providers.
const (
	SearchProviderRediSearch = "redisearch"
	SearchProviderBleve      = "bleve"
)

// Config is the root of the configuration file.
type Config struct {
	// LogLevel is one of trace, debug, info, warn or error.
	LogLevel string `hcl:"log_level,optional"`

	// LogFormat is "text" or "json".
	LogFormat string `hcl:"log_format,optional"`

	Server        *Server          `hcl:"server,block"`
	Redis         *Redis           `hcl:"redis,block"`
	Search        *Search          `hcl:"search,block"`
	Documents     *Documents       `hcl:"documents,block"`
	Notifications *backends.Config `hcl:"notifications,block"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string   `hcl:"addr,optional"`
	CORSOrigins     []string `hcl:"cors_origins,optional"`
	ShutdownTimeout string   `hcl:"shutdown_timeout,optional"`
}

// Redis configures the connection to the backing store.
type Redis struct {
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`

	// DialTimeout bounds each connection attempt.
	DialTimeout string `hcl:"dial_timeout,optional"`

	// OperationTimeout bounds each backend call made for a request.
	OperationTimeout string `hcl:"operation_timeout,optional"`
}

// Search configures the search index.
type Search struct {
	Provider  string `hcl:"provider,optional"`
	BlevePath string `hcl:"bleve_path,optional"`
	Limit     int    `hcl:"limit,optional"`
}

// Documents configures the mutation pipeline.
type Documents struct {
	// RecordCreates publishes and audits document creation as well as
	// updates.
	RecordCreates bool `hcl:"record_creates,optional"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Redis == nil {
		c.Redis = &Redis{}
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.DialTimeout == "" {
		c.Redis.DialTimeout = "5s"
	}
	if c.Redis.OperationTimeout == "" {
		c.Redis.OperationTimeout = "5s"
	}

	if c.Search == nil {
		c.Search = &Search{}
	}
	if c.Search.Provider == "" {
		c.Search.Provider = SearchProviderRediSearch
	}
	if c.Search.Provider == SearchProviderBleve && c.Search.BlevePath == "" {
		c.Search.BlevePath = "data/docs.bleve"
	}
	if c.Search.Limit == 0 {
		c.Search.Limit = 10
	}

	if c.Documents == nil {
		c.Documents = &Documents{}
	}
	if c.Notifications == nil {
		c.Notifications = &backends.Config{}
	}
}

// Load reads the HCL file at path from fs, applies environment overrides
// and defaults, and validates the result. An empty path skips the file.
func Load(fs afero.Fs, path string) (*Config, error) {
	return load(fs, path, os.Getenv)
}

func load(fs afero.Fs, path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		src, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := hclsimple.Decode(path, src, nil, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Redis == nil {
		c.Redis = &Redis{}
	}
	if c.Search == nil {
		c.Search = &Search{}
	}

	if v := getenv("RDOCS_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	if v := getenv("RDOCS_ADDR"); v != "" {
		c.Server.Addr = v
	} else if v := getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}

	if v := getenv("RDS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("RDS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RDS_PORT %q: %w", v, err)
		}
		c.Redis.Port = port
	}
	if v := getenv("RDS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("RDS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RDS_DB %q: %w", v, err)
		}
		c.Redis.DB = db
	}

	if v := getenv("RDOCS_SEARCH_PROVIDER"); v != "" {
		c.Search.Provider = strings.ToLower(v)
	}

	if v := getenv("KAFKA_BROKERS"); v != "" {
		if c.Notifications == nil {
			c.Notifications = &backends.Config{}
		}
		if c.Notifications.Kafka == nil {
			c.Notifications.Kafka = &backends.KafkaConfig{}
		}
		c.Notifications.Kafka.Enabled = true
		c.Notifications.Kafka.Brokers = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadDotEnv sets variables from a .env file that are not already set in
// the environment. A missing file is not an error.
func LoadDotEnv(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// RedisConn returns the connection settings for the negotiator.
func (c *Config) RedisConn() redisconn.Config {
	dial, _ := time.ParseDuration(c.Redis.DialTimeout)
	return redisconn.Config{
		Host:        c.Redis.Host,
		Port:        c.Redis.Port,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		DialTimeout: dial,
	}
}

// OperationTimeout returns the per-call deadline for backend operations.
func (c *Config) OperationTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Redis.OperationTimeout)
	return d
}

// ShutdownTimeout returns how long the server waits for in-flight requests.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("text", "json")),
		validation.Field(&c.Server, validation.Required),
		validation.Field(&c.Redis, validation.Required),
		validation.Field(&c.Search, validation.Required),
		validation.Field(&c.Notifications, validation.By(validateNotifications)),
	)
}

// Validate checks the server block.
func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.ShutdownTimeout, validation.By(duration)),
	)
}

// Validate checks the redis block.
func (r Redis) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Host, validation.Required),
		validation.Field(&r.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&r.DB, validation.Min(0)),
		validation.Field(&r.DialTimeout, validation.By(duration)),
		validation.Field(&r.OperationTimeout, validation.By(duration)),
	)
}

// Validate checks the search block.
func (s Search) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Provider, validation.Required, validation.In(SearchProviderRediSearch, SearchProviderBleve)),
		validation.Field(&s.BlevePath, validation.When(s.Provider == SearchProviderBleve, validation.Required)),
		validation.Field(&s.Limit, validation.Min(1)),
	)
}

func validateNotifications(value interface{}) error {
	cfg, _ := value.(*backends.Config)
	if cfg == nil || cfg.Kafka == nil || !cfg.Kafka.Enabled {
		return nil
	}
	return validation.Validate(cfg.Kafka.Brokers,
		validation.Required.Error("kafka brokers are required when kafka is enabled"))
}

// duration accepts a time.ParseDuration string with a positive value.
func duration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration such as \"5s\"")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}
