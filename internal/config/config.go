package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Push struct {
		// Subscriber - контакт (mailto: или URL) в VAPID-заголовках.
		Subscriber string `yaml:"subscriber"`
		// TTL исходящего push в секундах.
		TTL int `yaml:"ttl"`
	} `yaml:"push"`
}

var AppConfig *Config

// LoadConfig читает config.yaml и переопределяет значения из окружения.
// DATABASE_URL задан -> файл не обязателен (режим тестов/контейнера).
func LoadConfig() {
	var cfg Config

	dbURL := os.Getenv("DATABASE_URL")
	serverEnv := os.Getenv("SERVER_ENV")
	portStr := os.Getenv("SERVER_PORT")
	origins := os.Getenv("ALLOWED_ORIGINS")

	if dbURL == "" {
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config/config.yaml"
		}

		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("Failed to open config file at %s: %v", configPath, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("Failed to parse config file at %s: %v", configPath, err)
		}
	} else {
		cfg.Database.DSN = dbURL
	}

	// Переопределения из окружения
	if serverEnv != "" {
		cfg.Server.Env = serverEnv
	}
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Fatalf("Invalid SERVER_PORT %q: %v", portStr, err)
		}
		cfg.Server.Port = port
	}
	if origins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(origins, ",")
	}

	// Дефолты
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Push.Subscriber == "" {
		cfg.Push.Subscriber = "mailto:admin@mektep.local"
	}
	if cfg.Push.TTL == 0 {
		cfg.Push.TTL = 60
	}

	AppConfig = &cfg
}
