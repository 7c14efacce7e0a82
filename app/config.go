package coursechat

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DevMode  = "dev"
	ProdMode = "prod"

	MemoryFeed = "memory"
	RedisFeed  = "redis"

	// MemoryDB selects a private in-memory database.
	MemoryDB = ":memory:"

	envPrefix = "COURSECHAT"
)

type Config struct {
	// Port is the Port number to listen on. The default is 8080.
	Port int `validate:"required,port"`
	// Hostname is the Hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required"`
	// Mode is either dev or prod. TLS hardening only applies in prod.
	Mode string `validate:"required,oneof=dev prod"`
	Auth struct {
		// Secret is the key used to sign JWT tokens.
		// It must be a base64 encoded string. The default is a random 32 byte key,
		// which invalidates every token on restart.
		Secret Base64Encoded `validate:"required"`
		// TokenExp is how long a session token is valid. The default is 24h.
		TokenExp time.Duration `validate:"required"`
	}
	SQLite struct {
		// File is the path to the SQLite database file, or :memory:.
		File string `validate:"required"`
	}
	Feed struct {
		// Driver selects the change feed broker: memory or redis.
		Driver string `validate:"required,oneof=memory redis"`
		// RedisAddr is the host:port of the Redis server used by the redis driver.
		RedisAddr string `validate:"required_if=Driver redis"`
		// Prefix namespaces the Redis channels.
		Prefix string
	}
	TLS struct {
		Crt string
		Key string
	}
	// AllowedOrigins is a list of origins that are allowed to connect to the server.
	// The default is ["*"].
	AllowedOrigins []string
	valid          bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

// LoadConfig loads the configuration from the config file, a .env file and
// COURSECHAT_ prefixed environment variables, in increasing precedence.
// file may be empty, in which case ./config.yaml is used when present.
// Values that fail to decode are left zero and caught by Validate.
func LoadConfig(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	v.SetDefault("port", 8080)
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("mode", DevMode)
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))
	v.SetDefault("auth.tokenexp", "24h")
	v.SetDefault("sqlite.file", "./coursechat.db")
	v.SetDefault("feed.driver", MemoryFeed)
	v.SetDefault("feed.redisaddr", "")
	v.SetDefault("feed.prefix", "coursechat")
	v.SetDefault("tls.crt", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("allowedorigins", []string{"*"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	if (c.TLS.Crt == "") != (c.TLS.Key == "") {
		return errors.New("tls.crt and tls.key must be set together")
	}
	c.valid = true
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}
