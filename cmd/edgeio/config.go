package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/edgeio/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check edgeio config files",
	}
	cmd.AddCommand(configInitCmd(), configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var (
		format string
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(output)
			if target == "" {
				target = "edgeio." + strings.ToLower(strings.TrimSpace(format))
			}
			if ext := strings.TrimPrefix(filepath.Ext(target), "."); ext != "" && cmd.Flags().Changed("output") && !cmd.Flags().Changed("format") {
				format = ext
			}
			if err := config.WriteTemplate(target, format, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", format, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "toml", "config format: toml|yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default edgeio.<format>)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"valid config %s endpoint=%s security_mode=%s token_set=%v\n",
				args[0],
				cfg.Session.Endpoint,
				cfg.Session.SecurityMode,
				cfg.Session.Token != "",
			)
			return nil
		},
	}
}
