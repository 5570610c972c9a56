package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flanksource/clicky"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/depwatch/timemachine/client"
	"github.com/depwatch/timemachine/config"
)

var (
	cfgFile    string
	jsonOutput bool

	getVersionInfo func() (version, commit, date string, dirty bool)
)

var rootCmd = &cobra.Command{
	Use:   "timemachine",
	Short: "Dependency time-machine for JavaScript projects",
	Long: `timemachine captures point-in-time snapshots of a project's dependency
state (lockfile, resolved tree, postinstall scripts), stores them compressed
and deduplicated, diffs any two snapshots, verifies that a snapshot still
matches the live lockfile, and ranks the changes into security insights.

Supported lockfiles: pnpm-lock.yaml, yarn.lock, package-lock.json, bun.lock.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// SetVersionInfo injects build metadata from main.
func SetVersionInfo(fn func() (string, string, string, bool)) {
	getVersionInfo = fn
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.timemachine.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Format output in json")

	logger.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".timemachine")
	}

	viper.SetEnvPrefix("TIMEMACHINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Infof("Using config file: %s", viper.ConfigFileUsed())
	}
}

// newClient loads configuration and opens the time-machine facade. Callers
// own the returned client and must Close it.
func newClient() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return client.New(cfg)
}

// printResult renders v as json or through clicky's pretty formatter.
func printResult(v interface{}) error {
	if jsonOutput {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	output, err := clicky.Format(v)
	if err != nil {
		// Fall back to plain json when the formatter cannot handle the type.
		data, jsonErr := json.MarshalIndent(v, "", "  ")
		if jsonErr != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Print(output)
	return nil
}
