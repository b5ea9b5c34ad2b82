// Package configutil resolves configuration values with flag-over-viper
// precedence: an explicitly set command flag wins, otherwise the viper key
// (config file or environment), otherwise the flag's default.
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetString(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetString(flagName)
		if err == nil {
			return v
		}
	}
	return ""
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetBool(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetBool(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetBool(flagName)
		if err == nil {
			return v
		}
	}
	return false
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetInt(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetInt(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetInt(flagName)
		if err == nil {
			return v
		}
	}
	return 0
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetDuration(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetDuration(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetDuration(flagName)
		if err == nil {
			return v
		}
	}
	return 0
}
