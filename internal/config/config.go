package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	DB         DB        `yaml:"db"`
	Auth       Auth      `yaml:"auth"`
	Storage    Storage   `yaml:"storage"`
	Redis      Redis     `yaml:"redis"`
	AMQP       AMQP      `yaml:"amqp"`
	RateLimit  RateLimit `yaml:"rate_limit"`
	CORS       CORS      `yaml:"cors"`
	Cameras    Cameras   `yaml:"cameras"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type DB struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	Username string `yaml:"username" env:"POSTGRES_USER" env-default:"postgres"`
	Password string `yaml:"-" env:"POSTGRES_PASSWORD"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"postgres"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Auth struct {
	Secret          string        `yaml:"-" env:"AUTH_SECRET"`
	Algorithm       string        `yaml:"algorithm" env:"AUTH_ALGORITHM" env-default:"HS256"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"30m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	FirstUserAdmin  bool          `yaml:"first_user_admin" env:"ENABLE_FIRST_USER_ADMIN" env-default:"true"`
	SweepInterval   time.Duration `yaml:"sweep_interval" env-default:"1h"`
	Hash            Hash          `yaml:"hash"`
}

// Hash holds argon2id cost parameters. Memory is in KiB.
type Hash struct {
	Memory      uint32 `yaml:"memory" env-default:"65536"`
	Iterations  uint32 `yaml:"iterations" env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env-default:"2"`
}

type Storage struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"fs"`
	VideosPath string `yaml:"videos_path" env:"VIDEOS_PATH" env-default:"/var/lib/securecam/videos"`
	S3         S3     `yaml:"s3"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Region    string `yaml:"region" env:"S3_REGION" env-default:"auto"`
	Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	AccessKey string `yaml:"-" env:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"-" env:"S3_SECRET_KEY"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type AMQP struct {
	URL      string `yaml:"url" env:"AMQP_URL"`
	Exchange string `yaml:"exchange" env-default:"securecam.events"`
}

type RateLimit struct {
	LoginRequests int           `yaml:"login_requests" env-default:"10"`
	Window        time.Duration `yaml:"window" env-default:"1m"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

type Cameras struct {
	AgentPort string        `yaml:"agent_port" env-default:"8000"`
	Timeout   time.Duration `yaml:"timeout" env-default:"5s"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	if f := flag.Lookup("config"); f != nil {
		res = f.Value.String()
	} else {
		flag.StringVar(&res, "config", "", "path to config file")
		flag.Parse()
	}

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
