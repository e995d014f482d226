package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "ORDERS_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		IdleTimeout    time.Duration `koanf:"idle_timeout"`
		HandlerTimeout time.Duration `koanf:"handler_timeout"`
	} `koanf:"http"`

	Store struct {
		Driver string `koanf:"driver"` // postgres | memory
	} `koanf:"store"`

	Postgres struct {
		DSN      string `koanf:"dsn"`
		MaxConns int32  `koanf:"max_conns"`
		MinConns int32  `koanf:"min_conns"`
		Migrate  bool   `koanf:"migrate"`
	} `koanf:"postgres"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Kafka struct {
		Brokers []string `koanf:"brokers"`
		Group   string   `koanf:"group"`
		Workers int      `koanf:"workers"`
	} `koanf:"kafka"`

	Xendit struct {
		BaseURL            string        `koanf:"base_url"`
		SecretKey          string        `koanf:"secret_key"`
		CallbackToken      string        `koanf:"callback_token"`
		Timeout            time.Duration `koanf:"timeout"`
		InvoiceDuration    int           `koanf:"invoice_duration"`
		Currency           string        `koanf:"currency"`
		SuccessRedirectURL string        `koanf:"success_redirect_url"`
	} `koanf:"xendit"`

	Auth struct {
		JWTSecret string `koanf:"jwt_secret"`
		Issuer    string `koanf:"issuer"`
	} `koanf:"auth"`

	Reconcile struct {
		PollConcurrency int           `koanf:"poll_concurrency"`
		PollThrottle    time.Duration `koanf:"poll_throttle"`
	} `koanf:"reconcile"`

	Outbox struct {
		Interval time.Duration `koanf:"interval"`
		Batch    int           `koanf:"batch"`
	} `koanf:"outbox"`
}

// Load layers <dir>/base.yaml, the optional <dir>/<envName>.yaml and ORDERS_*
// environment variables, in that order.
func Load(dir, envName string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", dir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}
	// boleh tidak ada untuk local run
	if envName != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", dir, envName)), yaml.Parser())
	}

	// ORDERS_POSTGRES__DSN -> postgres.dsn
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	// brokers dari env datang sebagai "a:9092,b:9092"
	cfg.Kafka.Brokers = splitCSV(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn required")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret required")
	}
	if c.Reconcile.PollConcurrency <= 0 {
		return fmt.Errorf("reconcile.poll_concurrency must be > 0")
	}
	return nil
}

func splitCSV(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
