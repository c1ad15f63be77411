package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sriramreddyM/coco-annotator/cmd/datasets"
	"github.com/sriramreddyM/coco-annotator/cmd/iam"
	"github.com/sriramreddyM/coco-annotator/cmd/users"
	"github.com/sriramreddyM/coco-annotator/internal/config"
)

var (
	cfg        *config.Config
	logger     *slog.Logger
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "annotatorapi",
	Short: "COCO Annotator API server",
	Long: `COCO Annotator API serves image annotation datasets: uploads, rendering,
crowd-sourced annotation state and account sessions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger = newLogger(cfg.Debug)
		slog.SetDefault(logger)
		return nil
	},
}

func newLogger(debug bool) *slog.Logger {
	if debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: ANNOTATOR_DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: ANNOTATOR_SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: ANNOTATOR_DEBUG)")

	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("db-url"))
	_ = viper.BindPFlag("server_addr", rootCmd.PersistentFlags().Lookup("server-addr"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	rootCmd.AddCommand(users.UsersCmd)
	rootCmd.AddCommand(datasets.DatasetsCmd)
	rootCmd.AddCommand(iam.IamCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
