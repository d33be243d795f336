package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Discord    DiscordConfig    `mapstructure:"discord"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
}

type DiscordConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type ClassifierConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	TimeoutMS     int     `mapstructure:"timeout_ms"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type OpenAIConfig struct {
	APIKey           string   `mapstructure:"api_key"`
	RecheckModel     string   `mapstructure:"recheck_model"`
	CheckInModel     string   `mapstructure:"check_in_model"`
	SearchModel      string   `mapstructure:"search_model"`
	SearchTimeoutMS  int      `mapstructure:"search_timeout_ms"`
	MaxTokens        int      `mapstructure:"max_tokens"`
	AllowedModels    []string `mapstructure:"allowed_models"`
	HistoryWindow    int      `mapstructure:"history_window"`
	JournalCharLimit int      `mapstructure:"journal_char_limit"`
}

type WebhookConfig struct {
	Port int `mapstructure:"port"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("classifier.base_url", "http://localhost:8000")
	v.SetDefault("classifier.timeout_ms", 5000)
	v.SetDefault("classifier.min_confidence", 0.6)
	v.SetDefault("openai.recheck_model", "gpt-4o-mini")
	v.SetDefault("openai.check_in_model", "gpt-4o-mini")
	v.SetDefault("openai.search_model", "gpt-4o-search-preview")
	v.SetDefault("openai.search_timeout_ms", 20000)
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.allowed_models", []string{"gpt-5-chat-latest", "gpt-4o", "gpt-4o-mini"})
	v.SetDefault("openai.history_window", 5)
	v.SetDefault("openai.journal_char_limit", 24000)
	v.SetDefault("webhook.port", 3000)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("DISCORD_TOKEN"); token != "" {
		config.Discord.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if classifierURL := v.GetString("CLASSIFIER_API_URL"); classifierURL != "" {
		config.Classifier.BaseURL = classifierURL
	}

	return &config, nil
}
