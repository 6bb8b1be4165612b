package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Redis struct {
		// empty Addrs keeps IME sessions in process memory
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Engine struct {
		RingCapacity int           `mapstructure:"ringCapacity"`
		SessionTTL   time.Duration `mapstructure:"sessionTTL"`
		PresenceTTL  time.Duration `mapstructure:"presenceTTL"`
		Semaphore    int           `mapstructure:"semaphore"`
	} `mapstructure:"engine"`
	Dispatcher struct {
		QueueSize   int           `mapstructure:"queueSize"`
		Workers     int           `mapstructure:"workers"`
		MaxRetry    int           `mapstructure:"maxRetry"`
		BaseBackoff time.Duration `mapstructure:"baseBackoff"`
		MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
	} `mapstructure:"dispatcher"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allowOrigins"`
	} `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("kafka.topic", "doc-mutations")
	v.SetDefault("auth.secret", "dev-secret")
	v.SetDefault("engine.ringCapacity", 1024)
	v.SetDefault("engine.sessionTTL", "10m")
	v.SetDefault("engine.presenceTTL", "10m")
	v.SetDefault("engine.semaphore", 100)
	v.SetDefault("dispatcher.queueSize", 10_000)
	v.SetDefault("dispatcher.workers", 4)
	v.SetDefault("dispatcher.maxRetry", 3)
	v.SetDefault("dispatcher.baseBackoff", "50ms")
	v.SetDefault("dispatcher.maxBackoff", "1s")
	v.SetDefault("cors.allowOrigins", []string{"http://localhost:5173"})
}

// Load reads composer.yaml from ./backend/config, ./config or the working
// directory; a missing file is fine. COMPOSER_* environment variables
// override file values, e.g. COMPOSER_MYSQL_DSN.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("composer")
	v.SetConfigType("yaml")
	// works from the repo root or from backend/
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("COMPOSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
