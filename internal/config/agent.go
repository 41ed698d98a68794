package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Agent configures the device-side camera agent.
type Agent struct {
	Env            string        `yaml:"env" env:"ENV" env-default:"local"`
	Address        string        `yaml:"address" env:"AGENT_ADDRESS" env-default:"0.0.0.0:8000"`
	ServerURL      string        `yaml:"server_url" env:"SERVER_URL" env-required:"true"`
	Token          string        `yaml:"-" env:"AGENT_TOKEN"`
	AuthKey        string        `yaml:"-" env:"CAMERA_AUTH_KEY"`
	CameraID       int64         `yaml:"camera_id" env:"CAMERA_ID" env-required:"true"`
	VideosPath     string        `yaml:"videos_path" env:"VIDEOS_PATH" env-default:"/var/lib/securecam-agent/videos"`
	RecordCommand  string        `yaml:"record_command" env-default:"rpicam-vid"`
	RecordDuration time.Duration `yaml:"record_duration" env-default:"30s"`
	MaxDuration    time.Duration `yaml:"max_duration" env-default:"10m"`
	UploadTimeout  time.Duration `yaml:"upload_timeout" env-default:"2m"`
}

func MustLoadAgent() *Agent {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	_ = godotenv.Load()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Agent

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}
