package main

import (
	"os"
	"strings"

	"github.com/danmuck/edgeio/internal/agent"
	"github.com/danmuck/edgeio/internal/config"
	"github.com/danmuck/edgeio/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath string
	token      string
	endpoint   string
	admin      string
	logLevel   string
}

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the relay and serve until interrupted",
		Long: `Connect to the relay and serve until SIGINT or SIGTERM.

Settings are resolved in order: defaults, --config file, EDGEIO_TOKEN and
EDGEIO_ENDPOINT, then flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			cfg, err := resolveConfig(opts, os.LookupEnv)
			if err != nil {
				return err
			}
			if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
				log.Warn().Msgf("edgeio.run unknown log level %q", cfg.LogLevel)
			}
			svc, err := agent.NewService(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML or YAML config file")
	cmd.Flags().StringVar(&opts.token, "token", "", "relay token (default from EDGEIO_TOKEN)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "relay WebSocket endpoint")
	cmd.Flags().StringVar(&opts.admin, "admin", "", "admin HTTP listen address, empty disables it")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	return cmd
}

// resolveConfig layers flags over the file (or defaults) and environment.
func resolveConfig(opts runOptions, lookup func(string) (string, bool)) (config.Config, error) {
	var cfg config.Config
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else {
		cfg = config.ApplyEnv(config.Default(), lookup)
	}

	if v := strings.TrimSpace(opts.token); v != "" {
		cfg.Session.Token = v
	}
	if v := strings.TrimSpace(opts.endpoint); v != "" {
		cfg.Session.Endpoint = v
	}
	if v := strings.TrimSpace(opts.admin); v != "" {
		cfg.AdminAddr = v
	}
	if v := strings.TrimSpace(opts.logLevel); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
