package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "assessrec"
)

// Config is the root configuration, read from assessrec.yaml and environment.
type Config struct {
	CatalogFile   string `mapstructure:"catalog-file"`
	MaxTextLength int    `mapstructure:"max-text-length"`

	Engine    *EngineConfig    `mapstructure:"engine"`
	Cache     *CacheConfig     `mapstructure:"cache"`
	Embedding *EmbeddingConfig `mapstructure:"embedding"`
	Rerank    *RerankConfig    `mapstructure:"rerank"`
	Serve     *ServeConfig     `mapstructure:"serve"`
}

type EngineConfig struct {
	OverfetchFactor    int  `mapstructure:"overfetch-factor"`
	RequestTimeoutSecs int  `mapstructure:"request-timeout-secs"`
	WaitForReady       bool `mapstructure:"wait-for-ready"`
}

type CacheConfig struct {
	MaxEntries int `mapstructure:"max-entries"`
	TTLHours   int `mapstructure:"ttl-hours"`
}

type EmbeddingConfig struct {
	// Provider selects the embedding backend: "local" or "gemini".
	Provider       string        `mapstructure:"provider"`
	LocalDimension int           `mapstructure:"local-dimension"`
	Gemini         *GeminiConfig `mapstructure:"gemini"`
}

type RerankConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxLogLength int           `mapstructure:"max-log-length"`
	Gemini       *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type ServeConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "assessrec matches a job description against a catalog of skill assessments",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("embedding.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("catalog-file", "ASSESSREC_CATALOG_FILE"); err != nil {
		log.Fatalf("binding ASSESSREC_CATALOG_FILE environment variable: %v", err)
	}

	viper.SetDefault("engine.wait-for-ready", true)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is assessrec.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// A missing config file is fine: defaults cover the local backend.
	// A config file that exists but does not parse is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.CatalogFile == "" {
		config.CatalogFile = "data/catalog.csv"
	}
	if config.Embedding == nil {
		config.Embedding = &EmbeddingConfig{}
	}
	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "local"
	}
	if config.Engine == nil {
		config.Engine = &EngineConfig{WaitForReady: true}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{}
	}
	if config.Serve == nil {
		config.Serve = &ServeConfig{}
	}
	if config.Serve.Listen == "" {
		config.Serve.Listen = ":8080"
	}
}
