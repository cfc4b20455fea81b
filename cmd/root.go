package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Manu343726/schedcheck/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "schedcheck",
	Short: "Scheduling conformance checker for simulated microcontroller programs",
	Long: `schedcheck runs a compiled program on a simulated microcontroller, watches the
periodic routines of its scheduler through breakpoints and checks their timing
against a contract of periods and jitter budgets.

Plans and device models are read from the config file (see testdata/artx.yaml),
every setting can be overridden with SCHEDCHECK_* environment variables.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.schedcheck.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", string(logging.FormatAuto), "console log format: auto, text or json")
	flags.String("log-file", "", "also write JSON logs to this file")

	cobra.CheckErr(viper.BindPFlag("log.level", flags.Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("log.format", flags.Lookup("log-format")))
	cobra.CheckErr(viper.BindPFlag("log.file", flags.Lookup("log-file")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".schedcheck" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".schedcheck")
	}

	viper.SetEnvPrefix("schedcheck")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(err)
	}
}

// newLogger builds the logger from the "log" config section
func newLogger() *logging.Logger {
	options := logging.Options{
		Level:  viper.GetString("log.level"),
		Format: logging.Format(viper.GetString("log.format")),
		File:   viper.GetString("log.file"),
	}

	logger, err := logging.New(os.Stderr, options)
	cobra.CheckErr(err)
	return logger
}

// fail reports a fatal error and exits
func fail(format string, args ...any) {
	colorError.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}
