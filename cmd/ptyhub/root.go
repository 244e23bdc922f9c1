package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/user/ptyhub/internal/client"
	"github.com/user/ptyhub/internal/config"
)

type rootOptions struct {
	configPath string
	server     string
	output     string
	noColor    bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "ptyhub",
		Short: "ptyhub - background terminal sessions over HTTP and WebSocket",
		Long: `ptyhub runs commands inside pseudo-terminals, keeps their output and
streams it to WebSocket viewers.

Start the server:
  ptyhub serve

Work with sessions:
  ptyhub spawn -d "dev server" -- npm run dev
  ptyhub list
  ptyhub read <id> --pattern error
  ptyhub write <id> "ls -la" --key Enter
  ptyhub kill <id> --cleanup`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			switch opts.output {
			case outputText, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("invalid --output %q: must be text, json or yaml", opts.output)
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default is ~/.config/ptyhub/config.yaml)")
	pf.StringVar(&opts.server, "server", "", "server URL (default from config)")
	pf.StringVarP(&opts.output, "output", "o", outputText, "output format: text, json or yaml")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newServeCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newSpawnCmd(opts),
		newWriteCmd(opts),
		newReadCmd(opts),
		newBufferCmd(opts),
		newResizeCmd(opts),
		newKillCmd(opts),
		newCleanupCmd(opts),
		newClearCmd(opts),
		newHealthCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// client connects to --server, or to the address the config file gives
// the server.
func (o *rootOptions) client() (*client.Client, error) {
	if o.server != "" {
		return client.New(o.server), nil
	}
	cfg, err := config.Load(o.configPath, nil)
	if err != nil {
		return nil, err
	}
	return client.New(cfg.BaseURL()), nil
}

func (o *rootOptions) printer() *printer {
	return &printer{out: o.stdout, format: o.output}
}
