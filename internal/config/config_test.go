package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, SearchProviderRediSearch, cfg.Search.Provider)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.False(t, cfg.Documents.RecordCreates)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())

	conn := cfg.RedisConn()
	assert.Equal(t, "localhost:6379", conn.Addr())
	assert.Equal(t, 5*time.Second, conn.DialTimeout)
}

func TestLoad_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/rdocs/rdocs.hcl", []byte(`
log_level  = "debug"
log_format = "json"

server {
  addr         = ":8080"
  cors_origins = ["https://docs.example.com"]
}

redis {
  host              = "redis.internal"
  port              = 6380
  password          = "s3cret"
  db                = 2
  operation_timeout = "750ms"
}

search {
  provider   = "bleve"
  bleve_path = "/var/lib/rdocs/index.bleve"
  limit      = 50
}

documents {
  record_creates = true
}

notifications {
  log {
    enabled = true
  }
  kafka {
    enabled = true
    brokers = ["kafka-1:9092", "kafka-2:9092"]
    topic   = "docs.changes"
  }
}
`), 0o644))

	cfg, err := load(fs, "/etc/rdocs/rdocs.hcl", noEnv)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://docs.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 750*time.Millisecond, cfg.OperationTimeout())
	assert.Equal(t, SearchProviderBleve, cfg.Search.Provider)
	assert.Equal(t, "/var/lib/rdocs/index.bleve", cfg.Search.BlevePath)
	assert.Equal(t, 50, cfg.Search.Limit)
	assert.True(t, cfg.Documents.RecordCreates)
	require.NotNil(t, cfg.Notifications.Log)
	assert.True(t, cfg.Notifications.Log.Enabled)
	require.NotNil(t, cfg.Notifications.Kafka)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notifications.Kafka.Brokers)
	assert.Equal(t, "docs.changes", cfg.Notifications.Kafka.Topic)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := load(afero.NewMemMapFs(), "", noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "rdocs.hcl", []byte(`
redis {
  host = "from-file"
  port = 7000
}
`), 0o644))

	cfg, err := load(fs, "rdocs.hcl", envMap(map[string]string{
		"RDS_HOST":              "from-env",
		"RDS_PASSWORD":          "pw",
		"RDS_DB":                "3",
		"PORT":                  "9000",
		"RDOCS_LOG_LEVEL":       "WARN",
		"RDOCS_SEARCH_PROVIDER": "bleve",
		"KAFKA_BROKERS":         "a:9092, b:9092",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Redis.Host)
	assert.Equal(t, 7000, cfg.Redis.Port, "file value kept when env is unset")
	assert.Equal(t, "pw", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, SearchProviderBleve, cfg.Search.Provider)
	assert.Equal(t, "data/docs.bleve", cfg.Search.BlevePath)
	require.NotNil(t, cfg.Notifications.Kafka)
	assert.True(t, cfg.Notifications.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Notifications.Kafka.Brokers)
}

func TestLoad_AddrPrecedence(t *testing.T) {
	cfg, err := load(afero.NewMemMapFs(), "", envMap(map[string]string{
		"PORT":       "9000",
		"RDOCS_ADDR": "127.0.0.1:7000",
	}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad port env", env: map[string]string{"RDS_PORT": "six"}},
		{name: "bad db env", env: map[string]string{"RDS_DB": "x"}},
		{name: "unknown provider", env: map[string]string{"RDOCS_SEARCH_PROVIDER": "elastic"}},
		{name: "bad log level", env: map[string]string{"RDOCS_LOG_LEVEL": "loud"}},
		{name: "port out of range", file: `redis { port = 70000 }`},
		{name: "bad duration", file: `redis { operation_timeout = "soon" }`},
		{name: "negative duration", file: `server { shutdown_timeout = "-1s" }`},
		{name: "kafka without brokers", file: `notifications { kafka { enabled = true } }`},
		{name: "unknown attribute", file: `colour = "blue"`},
		{name: "syntax error", file: `redis {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			path := ""
			if tt.file != "" {
				path = "rdocs.hcl"
				require.NoError(t, afero.WriteFile(fs, path, []byte(tt.file), 0o644))
			}
			_, err := load(fs, path, envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "missing.hcl")
	assert.ErrorContains(t, err, "error reading config file")
}

func TestLoadDotEnv(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ".env", []byte("RDOCS_TEST_DOTENV_NEW=fromfile\nRDOCS_TEST_DOTENV_SET=fromfile\n"), 0o644))

	t.Setenv("RDOCS_TEST_DOTENV_SET", "fromenv")
	t.Cleanup(func() { _ = os.Unsetenv("RDOCS_TEST_DOTENV_NEW") })

	require.NoError(t, LoadDotEnv(fs, ".env"))
	assert.Equal(t, "fromfile", os.Getenv("RDOCS_TEST_DOTENV_NEW"))
	assert.Equal(t, "fromenv", os.Getenv("RDOCS_TEST_DOTENV_SET"), "existing variables win")

	assert.NoError(t, LoadDotEnv(fs, "absent.env"))
}
