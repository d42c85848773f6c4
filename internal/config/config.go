package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/eenlars/evoflow/pkg/operator"
	"github.com/spf13/viper"
)

// Config holds the full process configuration. Values come from config.yaml
// with EVOFLOW_-prefixed environment variables taking precedence, so
// deployments can override single keys without editing the file.
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"database"`
	} `mapstructure:"redis"`
	LLM struct {
		BaseURL               string `mapstructure:"base_url"`
		APIKey                string `mapstructure:"api_key"`
		Model                 string `mapstructure:"model"`
		JudgeModel            string `mapstructure:"judge_model"`
		MaxConcurrentRequests int    `mapstructure:"max_concurrent_requests"`
	} `mapstructure:"llm"`
	Evolution struct {
		PopulationSize         int                `mapstructure:"population_size"`
		Generations            int                `mapstructure:"generations"`
		ElitismCount           int                `mapstructure:"elitism_count"`
		MaxConcurrentWorkflows int                `mapstructure:"max_concurrent_workflows"`
		MaximumTimeMinutes     int                `mapstructure:"maximum_time_minutes"`
		MaxCostUSDPerRun       float64            `mapstructure:"max_cost_usd_per_run"`
		EnableSpendingLimits   bool               `mapstructure:"enable_spending_limits"`
		Seeding                string             `mapstructure:"seeding"`
		CrossoverRatio         float64            `mapstructure:"crossover_ratio"`
		MutationRatio          float64            `mapstructure:"mutation_ratio"`
		RandomRatio            float64            `mapstructure:"random_ratio"`
		Weights                operator.Weights   `mapstructure:"weights"`
		Baselines              operator.Baselines `mapstructure:"baselines"`
		StallGuard             bool               `mapstructure:"stall_guard"`
		EvaluationTimeout      time.Duration      `mapstructure:"evaluation_timeout"`
		StopRules              []string           `mapstructure:"stop_rules"`
	} `mapstructure:"evolution"`
}

// ConnStr builds the lib/pq connection string from the DB section.
func (c *Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// LoadConfig reads config.yaml and the EVOFLOW_ environment. A missing file
// is not an error; everything has a default or an env override.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("EVOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "evoflow")
	v.SetDefault("db.password", "evoflow")
	v.SetDefault("db.name", "evoflow")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.database", 0)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4.1-mini")
	v.SetDefault("llm.judge_model", "gpt-4.1-mini")
	v.SetDefault("llm.max_concurrent_requests", 10)

	v.SetDefault("evolution.population_size", 6)
	v.SetDefault("evolution.generations", 5)
	v.SetDefault("evolution.elitism_count", 1)
	v.SetDefault("evolution.max_concurrent_workflows", 3)
	v.SetDefault("evolution.enable_spending_limits", false)
	v.SetDefault("evolution.seeding", "random")
	v.SetDefault("evolution.crossover_ratio", 0.3)
	v.SetDefault("evolution.mutation_ratio", 0.5)
	v.SetDefault("evolution.random_ratio", 0.2)
	v.SetDefault("evolution.weights.score", operator.DefaultWeights.Score)
	v.SetDefault("evolution.weights.time", operator.DefaultWeights.Time)
	v.SetDefault("evolution.weights.cost", operator.DefaultWeights.Cost)
	v.SetDefault("evolution.baselines.time_seconds_baseline", operator.DefaultBaselines.TimeSecondsBaseline)
	v.SetDefault("evolution.baselines.time_seconds_threshold", operator.DefaultBaselines.TimeSecondsThreshold)
	v.SetDefault("evolution.baselines.cost_usd_baseline", operator.DefaultBaselines.CostUSDBaseline)
	v.SetDefault("evolution.baselines.cost_usd_threshold", operator.DefaultBaselines.CostUSDThreshold)
	v.SetDefault("evolution.stall_guard", true)
	v.SetDefault("evolution.evaluation_timeout", "10m")
}
