package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/ptyhub/configs"
	"github.com/user/ptyhub/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}
	cmd.AddCommand(newConfigInitCmd(opts), newConfigShowCmd(opts))
	return cmd
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if err := config.WriteFile(path, configs.DefaultConfig, force); err != nil {
				return err
			}
			opts.printer().printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing file")
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath, nil)
			if err != nil {
				return err
			}
			p := opts.printer()
			if p.format == outputText {
				p.format = outputYAML
				source := cfg.ConfigPath
				if source == "" {
					source = "defaults"
				}
				p.printf("%s\n", muted("# source: %s", source))
			}
			_, err = p.structured(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			return nil
		},
	}
}
