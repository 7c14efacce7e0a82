package coursechat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "0.0.0.0:8080", config.Addr())
	assert.Equal(t, DevMode, config.Mode)
	assert.Len(t, config.Auth.Secret, 32)
	assert.Equal(t, 24*time.Hour, config.Auth.TokenExp)
	assert.Equal(t, MemoryFeed, config.Feed.Driver)
	assert.Equal(t, "coursechat", config.Feed.Prefix)
	assert.Equal(t, []string{"*"}, config.AllowedOrigins)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("COURSECHAT_PORT", "9090")
	t.Setenv("COURSECHAT_AUTH_TOKENEXP", "2h")
	t.Setenv("COURSECHAT_AUTH_SECRET", "c2VjcmV0")
	t.Setenv("COURSECHAT_ALLOWEDORIGINS", "https://a.example,https://b.example")

	config, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, 9090, config.Port)
	assert.Equal(t, 2*time.Hour, config.Auth.TokenExp)
	assert.Equal(t, []byte("secret"), []byte(config.Auth.Secret))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.AllowedOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "coursechat.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
port: 9000
mode: prod
sqlite:
  file: /var/lib/coursechat/chat.db
auth:
  tokenexp: 30m
feed:
  driver: redis
  redisaddr: localhost:6379
allowedorigins:
  - https://courses.example
`), 0o600))

	t.Setenv("COURSECHAT_PORT", "9100")

	config, err := LoadConfig(file)
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, 9100, config.Port, "env overrides the file")
	assert.Equal(t, ProdMode, config.Mode)
	assert.Equal(t, "/var/lib/coursechat/chat.db", config.SQLite.File)
	assert.Equal(t, 30*time.Minute, config.Auth.TokenExp)
	assert.Equal(t, RedisFeed, config.Feed.Driver)
	assert.Equal(t, "localhost:6379", config.Feed.RedisAddr)
	assert.Equal(t, []string{"https://courses.example"}, config.AllowedOrigins)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{
			name:   "redis without an address",
			modify: func(c *Config) { c.Feed.Driver = RedisFeed },
			want:   "redisaddr is a required field",
		},
		{
			name:   "unknown mode",
			modify: func(c *Config) { c.Mode = "staging" },
			want:   "mode must be one of [dev prod]",
		},
		{
			name:   "port out of range",
			modify: func(c *Config) { c.Port = 70000 },
			want:   "port must be a valid port number",
		},
		{
			name:   "missing secret",
			modify: func(c *Config) { c.Auth.Secret = nil },
			want:   "secret is a required field",
		},
		{
			name:   "certificate without a key",
			modify: func(c *Config) { c.TLS.Crt = "server.crt" },
			want:   "tls.crt and tls.key must be set together",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := testConfig()
			test.modify(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, test.want, FormatValidationErrors(err))
		})
	}

	_, err := New(context.Background(), &Config{})
	assert.ErrorContains(t, err, "invalid config")
}
