package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/pkg/logger"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

var (
	cfgFile   string
	clearData bool
)

var rootCmd = &cobra.Command{
	Use:   "expenseflow",
	Short: "ExpenseFlow Pro",
	Long:  `Expense submission, receipt ingestion, approvals and analytics.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads config.yml (or --config) over the built-in defaults.
// EXPENSEFLOW_* environment variables, including those from an optional
// .env file, override both; a missing default config file is not an error.
func loadConfig() (*internal.Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	internal.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yml")
	}
	v.SetEnvPrefix("EXPENSEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	return &cfg, nil
}

func init() {
	decimal.MarshalJSONWithoutQuotes = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yml)")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(ocrCmd)
}
