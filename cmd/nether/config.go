package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drblury/nether/internal/runtime/config"
)

type configFlags struct {
	path      string
	envFile   string
	envPrefix string
	host      string
	port      int
	logLevel  string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "Environment file loaded before reading database variables")
	cmd.Flags().StringVar(&f.envPrefix, "env-prefix", config.DefaultEnvPrefix, "Prefix of the database environment variables")
	cmd.Flags().StringVar(&f.host, "host", "", "Host to listen on (overrides the configuration)")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, fmt.Sprintf("Port to listen on (default %d)", config.DefaultPort))
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error or critical")
}

// load reads the configuration file when one is given, then the database
// environment, then applies flag overrides.
func (f *configFlags) load() (*config.Config, error) {
	conf := config.Default()
	if f.path != "" {
		loaded, err := config.Load(f.path)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f.envFile, err)
		}
	}
	prefix := f.envPrefix
	if prefix == "" {
		prefix = config.DefaultEnvPrefix
	}
	if err := conf.ApplyEnv(prefix); err != nil {
		return nil, err
	}
	if f.host != "" {
		conf.Host = f.host
	}
	if f.port != 0 {
		conf.Port = f.port
	}
	if conf.Port == 0 {
		conf.Port = config.DefaultPort
	}
	if f.logLevel != "" {
		conf.LogLevel = f.logLevel
	}
	if err := config.ValidateConfig(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func configCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Print the configuration serve would run with. Database credentials are redacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := flags.load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conf.String())
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}
