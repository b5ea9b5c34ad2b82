package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pennywhale/pennywhale/cmd/pennywhale/consolecmd"
	"github.com/pennywhale/pennywhale/cmd/pennywhale/slackcmd"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func main() {
	// A local .env is a convenience for development; absence is not an
	// error.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "pennywhale",
		Short:         "Slack bot that relays messages to an NLU service and runs scripted responses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "Config file (default $HOME/.pennywhale/config.yaml).")

	root.AddCommand(slackcmd.New())
	root.AddCommand(consolecmd.New())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("PENNYWHALE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("bot.company_share_delay", "5s")
	viper.SetDefault("bot.bill_estimate_delay", "3s")

	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfgFile = strings.TrimSpace(cfgFile)
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	viper.AddConfigPath(filepath.Join(home, ".pennywhale"))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
