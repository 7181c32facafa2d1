package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is read once at startup and passed by reference into the
// constructors that need it; nothing reads it through a global.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	AI struct {
		Provider string `yaml:"provider"` // ollama | openai
		BaseURL  string `yaml:"baseURL"`  // openai-compatible server root
		APIKey   string `yaml:"apiKey"`
	} `yaml:"ai"`

	Ollama struct {
		Host             string `yaml:"host"`
		DetectionModel   string `yaml:"detectionModel"`
		ExplanationModel string `yaml:"explanationModel"`
	} `yaml:"ollama"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`

	Analysis struct {
		ExplainWorkers int `yaml:"explainWorkers"`
		MaxCodeSizeKB  int `yaml:"maxCodeSizeKB"`
	} `yaml:"analysis"`
}

// Load reads the yaml config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "ollama"
	}
	if c.Ollama.Host == "" {
		c.Ollama.Host = "http://localhost:11434"
	}
	if c.Ollama.DetectionModel == "" {
		c.Ollama.DetectionModel = "deepseek-coder-v2:latest"
	}
	if c.Ollama.ExplanationModel == "" {
		c.Ollama.ExplanationModel = "llama3.1:8b"
	}
	if c.Analysis.ExplainWorkers == 0 {
		c.Analysis.ExplainWorkers = 1
	}
	if c.Analysis.MaxCodeSizeKB == 0 {
		c.Analysis.MaxCodeSizeKB = 500
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
}

// Helper to build the MySQL DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper to build the Postgres DSN
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
