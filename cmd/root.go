package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/spigell/cv-evaluator/internal/ai/gemini"
	"github.com/spigell/cv-evaluator/internal/cache"
	"github.com/spigell/cv-evaluator/internal/evaluation"
	"github.com/spigell/cv-evaluator/internal/queue"
	"github.com/spigell/cv-evaluator/internal/retrieval"
	"github.com/spigell/cv-evaluator/internal/retry"
	"github.com/spigell/cv-evaluator/internal/scoring"
	"github.com/spigell/cv-evaluator/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "cv-evaluator"
	envPrefix = "CV_EVALUATOR"
)

type Config struct {
	AppName   string          `mapstructure:"app-name"`
	Database  store.Config    `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Retry     retry.Policy    `mapstructure:"retry"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	AI        AIConfig        `mapstructure:"ai"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Redis     cache.Config    `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type StorageConfig struct {
	Root string `mapstructure:"root"`
}

type DocumentsConfig struct {
	Root      string `mapstructure:"root"`
	ChunkSize int    `mapstructure:"chunk-size"`
}

type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	Size    int `mapstructure:"size"`
}

type PipelineConfig struct {
	JobTimeout       time.Duration `mapstructure:"job-timeout"`
	ParallelBranches bool          `mapstructure:"parallel-branches"`
	RetrievalTopK    int           `mapstructure:"retrieval-top-k"`
}

type ScoringConfig struct {
	CVScale        float64            `mapstructure:"cv-scale"`
	CVWeights      map[string]float64 `mapstructure:"cv-weights"`
	ProjectWeights map[string]float64 `mapstructure:"project-weights"`
}

type AIConfig struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey            string  `mapstructure:"api-key"`
	APIKeyFile        string  `mapstructure:"api-key-file"`
	Model             string  `mapstructure:"model"`
	EmbeddingModel    string  `mapstructure:"embedding-model"`
	Temperature       float32 `mapstructure:"temperature"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
	MaxLogLength      int     `mapstructure:"max-log-length"`
}

type HTTPConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	MaxUploadBytes  int64         `mapstructure:"max-upload-bytes"`
}

type LoggingConfig struct {
	OutputPaths []string `mapstructure:"output-paths"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-evaluator scores candidate CVs and project reports against a job with an LLM pipeline",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-evaluator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app-name", "AI CV Evaluation Backend")

	v.SetDefault("database.driver", store.DriverSQLite)
	v.SetDefault("database.dsn", "./data/app.db")
	v.SetDefault("database.dial-timeout", 10*time.Second)

	v.SetDefault("storage.root", "./data/files")
	v.SetDefault("documents.root", "./data/documents")
	v.SetDefault("documents.chunk-size", retrieval.DefaultChunkSize)

	v.SetDefault("queue.workers", queue.DefaultWorkers)
	v.SetDefault("queue.size", queue.DefaultQueueSize)

	v.SetDefault("pipeline.job-timeout", evaluation.DefaultJobTimeout)
	v.SetDefault("pipeline.parallel-branches", false)
	v.SetDefault("pipeline.retrieval-top-k", evaluation.DefaultRetrievalTopK)

	policy := retry.DefaultPolicy()
	v.SetDefault("retry.attempts", policy.Attempts)
	v.SetDefault("retry.base-delay", policy.BaseDelay)
	v.SetDefault("retry.max-delay", policy.MaxDelay)
	v.SetDefault("retry.jitter", policy.Jitter)

	v.SetDefault("scoring.cv-scale", scoring.DefaultCVScale)

	v.SetDefault("ai.gemini.model", gemini.DefaultModel)
	v.SetDefault("ai.gemini.embedding-model", gemini.DefaultEmbeddingModel)
	v.SetDefault("ai.gemini.temperature", gemini.DefaultTemperature)
	v.SetDefault("ai.gemini.requests-per-second", 2)
	v.SetDefault("ai.gemini.max-log-length", 200)

	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.shutdown-timeout", 30*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.ttl", cache.DefaultTTL)
}

func initConfig() {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// the defaults are enough to run locally
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	return config, nil
}
