package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/zenfi/core/internal/client"
	"github.com/zenfi/core/internal/localstore"
)

// config is read from ZENFI_* variables, optionally set in a .env file.
// Flags win over the environment.
type config struct {
	API           string        `default:"http://localhost:9000"`
	Token         string
	User          string
	StateDir      string        `split_words:"true"`
	AuthSecret    string        `split_words:"true"`
	UploadTimeout time.Duration `split_words:"true" default:"60s"`
	StallTimeout  time.Duration `split_words:"true" default:"15s"`
}

var (
	cfg config

	verbose   bool
	envFile   string
	flagAPI   string
	flagToken string
	flagUser  string
	flagState string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&envFile, "env", "", ".env", "dotenv file to load, if present")
	rootCmd.PersistentFlags().StringVarP(&flagAPI, "api", "", "", "api base url (ZENFI_API)")
	rootCmd.PersistentFlags().StringVarP(&flagToken, "token", "", "", "bearer token (ZENFI_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "user id the token belongs to (ZENFI_USER)")
	rootCmd.PersistentFlags().StringVarP(&flagState, "state", "", "", "local state directory (ZENFI_STATE_DIR), default ~/.zenfi")
}

var rootCmd = &cobra.Command{
	Use:               "zenfictl",
	Short:             "zenfi receipts and withdrawals CLI",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("godotenv.Load: %w", err)
		}
	}

	if err := envconfig.Process("zenfi", &cfg); err != nil {
		return fmt.Errorf("envconfig.Process: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.API = flagAPI
	}
	if flags.Changed("token") {
		cfg.Token = flagToken
	}
	if flags.Changed("user") {
		cfg.User = flagUser
	}
	if flags.Changed("state") {
		cfg.StateDir = flagState
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("must set --state: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".zenfi")
	}

	return nil
}

func openState() (*localstore.Store, error) {
	return localstore.Open(filepath.Join(cfg.StateDir, "state.db"))
}

func apiClient() (*client.Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("must set --token or ZENFI_TOKEN")
	}

	return client.New(cfg.API, cfg.Token), nil
}

func requireUser() (string, error) {
	if cfg.User == "" {
		return "", fmt.Errorf("must set --user or ZENFI_USER")
	}

	return cfg.User, nil
}

func debugf(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
