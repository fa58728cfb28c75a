package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	HTTPAddress          string        `mapstructure:"http_address"`
	RPCAddress           string        `mapstructure:"rpc_address"`
	HealthAddress        string        `mapstructure:"health_address"`
	AllowedOrigins       []string      `mapstructure:"allowed_origins"`
	MaxMessagesPerSecond float64       `mapstructure:"max_messages_per_second"`
	MessageBurst         int           `mapstructure:"message_burst"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
}

type DatabaseConfig struct {
	// Driver selects the durable store: "gorm", "postgres" (raw SQL) or "memory".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// RedisConfig enables the Redis match snapshot store. When disabled, match
// snapshots go to the durable store selected by DatabaseConfig.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type GameConfig struct {
	RoundDuration  int `mapstructure:"round_duration"`
	WordsCount     int `mapstructure:"words_count"`
	LastRoundIndex int `mapstructure:"last_round_index"`
	// WordSource is "file" or "database".
	WordSource string `mapstructure:"word_source"`
	WordsFile  string `mapstructure:"words_file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.health_address", ":8082")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_messages_per_second", 20)
	v.SetDefault("server.message_burst", 40)
	v.SetDefault("server.heartbeat_interval", 30*time.Second)

	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "hat")
	v.SetDefault("database.postgres.dbname", "hat_game")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.snapshot_ttl", 6*time.Hour)

	v.SetDefault("game.round_duration", 30)
	v.SetDefault("game.words_count", 100)
	v.SetDefault("game.last_round_index", 3)
	v.SetDefault("game.word_source", "file")
	v.SetDefault("game.words_file", "words.csv")

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.namespace", "hatgame")
}

// LoadConfig reads config.yaml from path, overlaid with HAT_* environment
// variables. A .env file in the working directory is loaded first if present.
// A missing config.yaml is not an error; defaults and environment apply.
func LoadConfig(path string) (config *Config, err error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("HAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	return
}
