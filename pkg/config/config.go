package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Analysis AnalysisConfig
	Insights InsightsConfig
	Guided   GuidedConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

// AnalysisConfig lifts the analysis thresholds out of the code so they
// are tunable and testable as parameters.
type AnalysisConfig struct {
	MinSampleSize            int
	TrendEpsilon             float64
	TrendWindowDays          int
	CorrelationLookbackHours int
}

type InsightsConfig struct {
	RecomputeTimeoutSec int
	CacheTTLSec         int
}

type GuidedConfig struct {
	Store         string
	SessionTTLSec int
	MaxQuestions  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/voicehealth")

	viper.SetEnvPrefix("VOICEHEALTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("sqlite.path", "./data/voicehealth.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.baseURL", "http://localhost:8000/v1")
	viper.SetDefault("llm.apiKey", "not-needed-for-local")
	viper.SetDefault("llm.model", "qwen-3-hybrid")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 120)

	viper.SetDefault("analysis.minSampleSize", 5)
	viper.SetDefault("analysis.trendEpsilon", 0.05)
	viper.SetDefault("analysis.trendWindowDays", 14)
	viper.SetDefault("analysis.correlationLookbackHours", 24)

	viper.SetDefault("insights.recomputeTimeoutSec", 120)
	viper.SetDefault("insights.cacheTTLSec", 3600)

	viper.SetDefault("guided.store", "memory")
	viper.SetDefault("guided.sessionTTLSec", 1800)
	viper.SetDefault("guided.maxQuestions", 3)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
