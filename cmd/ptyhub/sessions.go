package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/user/ptyhub/internal/buffer"
	"github.com/user/ptyhub/internal/client"
	"github.com/user/ptyhub/internal/pty"
	"github.com/user/ptyhub/internal/session"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			infos, err := c.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			p := opts.printer()
			if ok, err := p.structured(infos); ok {
				return err
			}
			if len(infos) == 0 {
				p.printf("No active PTY sessions.\n")
				return nil
			}
			p.printf("Active PTY Sessions (%d):\n\n", len(infos))
			for _, info := range infos {
				p.lines(formatSessionInfo(info))
			}
			return nil
		},
	}
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			info, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return sessionError(args[0], err)
			}
			return printInfo(opts.printer(), info)
		},
	}
}

func newSpawnCmd(opts *rootOptions) *cobra.Command {
	var (
		description string
		workdir     string
		env         map[string]string
	)
	cmd := &cobra.Command{
		Use:   "spawn [flags] -- <command> [args...]",
		Short: "Start a command in a new terminal session",
		Long: `Start a command in a new terminal session.

A single quoted argument is split the way a shell would:
  ptyhub spawn "npm run dev -- --port 3000"
  ptyhub spawn -- npm run dev -- --port 3000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			argv, err := commandArgs(args)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			info, err := c.Spawn(cmd.Context(), client.SpawnRequest{
				Command:     argv[0],
				Args:        argv[1:],
				Description: description,
				Workdir:     workdir,
				Env:         env,
			})
			if err != nil {
				return fmt.Errorf("failed to spawn session: %w", err)
			}
			return printInfo(opts.printer(), info)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&description, "description", "d", "", "what the session is for; also used as its title")
	f.StringVarP(&workdir, "workdir", "w", "", "working directory (default is the server's)")
	f.StringToStringVarP(&env, "env", "e", nil, "environment overrides, KEY=VALUE")
	return cmd
}

// commandArgs returns argv for spawn. One argument containing whitespace
// is treated as a shell command line.
func commandArgs(args []string) ([]string, error) {
	if len(args) == 1 && strings.ContainsAny(args[0], " \t") {
		argv, err := shellquote.Split(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse command %q: %w", args[0], err)
		}
		args = argv
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, errors.New("command is required")
	}
	return args, nil
}

func newWriteCmd(opts *rootOptions) *cobra.Command {
	var (
		keys  []string
		enter bool
	)
	cmd := &cobra.Command{
		Use:   "write <id> [data]",
		Short: "Send input to a session",
		Long: `Send input to a session. Keys named with --key are appended after data,
in order: Enter, Tab, Escape, Backspace, Up, Down, Left, Right, Home, End,
C-c, C-d, C-z, C-l, C-u.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data strings.Builder
			if len(args) == 2 {
				data.WriteString(args[1])
			}
			for _, k := range keys {
				data.WriteString(pty.KeySequence(k))
			}
			if enter {
				data.WriteString(pty.KeySequence("Enter"))
			}
			if data.Len() == 0 {
				return errors.New("nothing to write: give data or --key")
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Write(cmd.Context(), args[0], data.String()); err != nil {
				return sessionError(args[0], err)
			}
			if ok, err := opts.printer().structured(map[string]any{"success": true, "bytes": data.Len()}); ok {
				return err
			}
			opts.printer().printf("Sent %d bytes to %s\n", data.Len(), args[0])
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&keys, "key", "k", nil, "named key to send after data (repeatable)")
	cmd.Flags().BoolVar(&enter, "enter", false, "finish with Enter")
	return cmd
}

func newReadCmd(opts *rootOptions) *cobra.Command {
	var (
		offset  int
		limit   int
		pattern string
	)
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Print completed output lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if offset < 0 {
				return errors.New("--offset must not be negative")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			p := opts.printer()
			id := args[0]

			if pattern != "" {
				res, err := c.Search(cmd.Context(), id, pattern, offset, limit)
				if err != nil {
					return sessionError(id, err)
				}
				if ok, err := p.structured(res); ok {
					return err
				}
				printMatches(p, id, pattern, res)
				return nil
			}

			res, err := c.Read(cmd.Context(), id, offset, limit)
			if err != nil {
				return sessionError(id, err)
			}
			if ok, err := p.structured(res); ok {
				return err
			}
			printPage(p, id, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&offset, "offset", 0, "first line (or first match with --pattern) to return")
	f.IntVar(&limit, "limit", buffer.NoLimit, "maximum lines or matches to return (-1 for all)")
	f.StringVarP(&pattern, "pattern", "p", "", "only lines matching this regular expression")
	return cmd
}

func printPage(p *printer, id string, res *session.ReadResult) {
	if len(res.Lines) == 0 {
		p.printf("%s\n", muted("No output lines for %s (total %d).", id, res.TotalLines))
		return
	}
	for i, line := range res.Lines {
		p.printf("%s\n", formatLine(line, res.Offset+i+1))
	}
	first := res.Offset + 1
	last := res.Offset + len(res.Lines)
	p.printf("\n%s\n", muted("Lines %d-%d of %d", first, last, res.TotalLines))
	if res.HasMore {
		p.printf("%s\n", muted("More output available, continue with --offset %d", last))
	}
}

func printMatches(p *printer, id, pattern string, res *session.SearchResult) {
	if res.TotalMatches == 0 {
		p.printf("%s\n", muted("No lines in %s match %q (%d lines searched).", id, pattern, res.TotalLines))
		return
	}
	for _, m := range res.Matches {
		p.printf("%s\n", formatLine(m.Line, m.Index+1))
	}
	p.printf("\n%s\n", muted("%d of %d matches across %d lines", len(res.Matches), res.TotalMatches, res.TotalLines))
	if res.HasMore {
		p.printf("%s\n", muted("More matches available, continue with --offset %d", res.Offset+len(res.Matches)))
	}
}

func newBufferCmd(opts *rootOptions) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "buffer <id>",
		Short: "Print the whole output, escape sequences included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			p := opts.printer()
			if plain {
				buf, err := c.PlainBuffer(cmd.Context(), args[0])
				if err != nil {
					return sessionError(args[0], err)
				}
				if ok, err := p.structured(buf); ok {
					return err
				}
				p.printf("%s", buf.Plain)
				return nil
			}
			buf, err := c.RawBuffer(cmd.Context(), args[0])
			if err != nil {
				return sessionError(args[0], err)
			}
			if ok, err := p.structured(buf); ok {
				return err
			}
			p.printf("%s", buf.Raw)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "strip ANSI escape sequences")
	return cmd
}

func newResizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resize <id> <cols> <rows>",
		Short: "Change a session's terminal size",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid cols %q", args[1])
			}
			rows, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid rows %q", args[2])
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Resize(cmd.Context(), args[0], cols, rows); err != nil {
				return sessionError(args[0], err)
			}
			opts.printer().printf("Resized %s to %dx%d\n", args[0], cols, rows)
			return nil
		},
	}
}

func newKillCmd(opts *rootOptions) *cobra.Command {
	var cleanup bool
	cmd := &cobra.Command{
		Use:   "kill <id>",
		Short: "Terminate a session's process",
		Long: `Terminate a session's process. The session and its output stay
available until cleaned up; --cleanup removes it straight away.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			id := args[0]
			if cleanup {
				err = c.Cleanup(cmd.Context(), id)
			} else {
				err = c.Kill(cmd.Context(), id)
			}
			if err != nil {
				return sessionError(id, err)
			}
			if cleanup {
				opts.printer().printf("Killed and cleaned up %s\n", id)
			} else {
				opts.printer().printf("Killed %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "also remove the session and its output")
	return cmd
}

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <id>",
		Short: "Kill a session and remove it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Cleanup(cmd.Context(), args[0]); err != nil {
				return sessionError(args[0], err)
			}
			opts.printer().printf("Cleaned up %s\n", args[0])
			return nil
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Kill and remove every session, or only the children of --parent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if parent != "" {
				if err := c.ClearChildren(cmd.Context(), parent); err != nil {
					return fmt.Errorf("failed to clear sessions of %s: %w", parent, err)
				}
				opts.printer().printf("Cleared sessions spawned by %s\n", parent)
				return nil
			}
			if err := c.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear sessions: %w", err)
			}
			opts.printer().printf("Cleared all sessions\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "only remove sessions spawned by this parent session id")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			p := opts.printer()
			if ok, err := p.structured(h); ok {
				return err
			}
			p.printf("%s at %s: %d sessions (%d running), %d viewers, up %.0fs\n",
				h.Status, c.BaseURL(), h.Sessions.Total, h.Sessions.Active, h.WebSocket.Connections, h.Uptime)
			return nil
		},
	}
}

func printInfo(p *printer, info *session.Info) error {
	if ok, err := p.structured(info); ok {
		return err
	}
	p.lines(formatSessionInfo(*info))
	return nil
}

func sessionError(id string, err error) error {
	if client.IsNotFound(err) {
		return fmt.Errorf("session %s not found", id)
	}
	return err
}
