package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matheoxz/parangolapp/internal/config"
)

// loadConfig loads the file named by --config, or the default config path
// when it exists, or the built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		path = config.DefaultConfigPath()
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// configureLogger picks the level from --log-level, then --verbose, then
// the config file. Logs go to stderr so command output stays clean.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	levelStr := cfg.LogLevel
	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		levelStr = s
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		levelStr = "debug"
	}

	level, err := config.ParseLogLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := config.NewLogger(level)
	logger.SetOutput(os.Stderr)
	return logger, nil
}

// setup loads the config and builds the logger. Once it succeeds the
// arguments are known good, so usage is no longer printed on errors.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	cmd.SilenceUsage = true
	return cfg, logger, nil
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = config.DefaultConfigPath()
		}
		cmd.SilenceUsage = true
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}
