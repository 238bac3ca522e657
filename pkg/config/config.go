package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Session struct {
		Name   string        `mapstructure:"NAME"`
		Secret string        `mapstructure:"SECRET"`
		TTL    time.Duration `mapstructure:"TTL"`
	} `mapstructure:"SESSION"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	Payment struct {
		WebhookSecret   string `mapstructure:"WEBHOOK_SECRET"`
		SignatureHeader string `mapstructure:"SIGNATURE_HEADER"`
		Currency        string `mapstructure:"CURRENCY"`
		MaxRetry        int    `mapstructure:"MAX_RETRY"`
	} `mapstructure:"PAYMENT"`
	Wallet struct {
		MinWithdrawal        string `mapstructure:"MIN_WITHDRAWAL"`
		WithdrawalFeePercent string `mapstructure:"WITHDRAWAL_FEE_PERCENT"`
	} `mapstructure:"WALLET"`
	RateLimit struct {
		RPS   float64 `mapstructure:"RPS"`
		Burst int     `mapstructure:"BURST"`
	} `mapstructure:"RATE_LIMIT"`
	FirstAdmin struct {
		Email    string `mapstructure:"EMAIL"`
		Password string `mapstructure:"PASSWORD"`
	} `mapstructure:"FIRST_ADMIN"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "reviewhub")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SESSION.NAME", "reviewhub")
	v.SetDefault("SESSION.TTL", 24*time.Hour)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("SNOWFLAKE.NODE", 1)
	v.SetDefault("PAYMENT.SIGNATURE_HEADER", "verif-hash")
	v.SetDefault("PAYMENT.CURRENCY", "USD")
	v.SetDefault("PAYMENT.MAX_RETRY", 10)
	v.SetDefault("WALLET.MIN_WITHDRAWAL", "30.00")
	v.SetDefault("WALLET.WITHDRAWAL_FEE_PERCENT", "10")
	v.SetDefault("RATE_LIMIT.RPS", 5)
	v.SetDefault("RATE_LIMIT.BURST", 10)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"APP_VERSION", "OTEL.ADDR",
		"TLS.ENABLE", "TLS.CERT_PATH", "TLS.KEY_PATH",
		"SESSION.SECRET",
		"DATABASE.HOST", "DATABASE.PORT", "DATABASE.DBNAME", "DATABASE.USER", "DATABASE.PASSWORD",
		"REDIS.PASSWORD", "REDIS.DB",
		"MINIO.ENDPOINT", "MINIO.ACCESS_KEY", "MINIO.SECRET_KEY", "MINIO.SECURE", "MINIO.BUCKET_NAME",
		"PAYMENT.WEBHOOK_SECRET",
		"FIRST_ADMIN.EMAIL", "FIRST_ADMIN.PASSWORD",
	} {
		if !v.IsSet(key) {
			v.SetDefault(key, "")
		}
	}
}

// Load reads config.yaml from path (when present) and applies environment
// overrides, e.g. DATABASE_HOST overrides DATABASE.HOST.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func LoadConfig() *Config {
	path := "."
	if v, ok := os.LookupEnv("CONFIG_PATH"); ok {
		path = v
	}

	cfg, err := Load(path)
	if err != nil {
		zap.L().Error("failed to load config", zap.String("path", path), zap.Error(err))
		os.Exit(1)
	}

	return cfg
}
