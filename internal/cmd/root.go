package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Iron-Ham/ensemble/internal/cmd/config"
	"github.com/Iron-Ham/ensemble/internal/cmd/execution"
	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	"github.com/Iron-Ham/ensemble/internal/cmd/planning"
	"github.com/Iron-Ham/ensemble/internal/cmd/review"
	appconfig "github.com/Iron-Ham/ensemble/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Multi-agent code generation coordinator",
	Long: `Ensemble runs a phased plan of code generation tasks across several
agent CLIs at once. Tasks run in dependency-ordered parallel batches, share
context through declarations, fall back to other agents when one is
unavailable, and the outputs are checked for conflicts when the run ends.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are printed here unless the command
// already reported them.
func Execute() error {
	err := rootCmd.Execute()
	var silent *output.SilentError
	if err != nil && !errors.As(err, &silent) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// Root returns the root command, for tests and documentation generators.
func Root() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/ensemble/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	config.Register(rootCmd)
	execution.Register(rootCmd)
	planning.Register(rootCmd)
	review.Register(rootCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath("$HOME/.config/ensemble")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ENSEMBLE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ENSEMBLE_ENGINE_MAX_PARALLEL for engine.max_parallel
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
