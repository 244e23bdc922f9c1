package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/ptyhub/internal/store"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var filter store.HistoryFilter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sessions, including removed ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			records, err := c.History(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			p := opts.printer()
			if ok, err := p.structured(records); ok {
				return err
			}
			if len(records) == 0 {
				p.printf("No recorded sessions.\n")
				return nil
			}

			w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSTATUS\tEXIT\tCOMMAND\tPARENT\tCREATED\tREMOVED")
			for _, rec := range records {
				exit := "-"
				if rec.ExitCode != nil {
					exit = fmt.Sprint(*rec.ExitCode)
				}
				parent := rec.ParentSessionID
				if parent == "" {
					parent = "-"
				}
				removed := "-"
				if rec.RemovedAt != nil {
					removed = rec.RemovedAt.Local().Format(time.DateTime)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID,
					rec.Status,
					exit,
					trimTitle(commandLine(rec.Command, rec.Args), 48),
					parent,
					rec.CreatedAt.Local().Format(time.DateTime),
					removed,
				)
			}
			return w.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.ParentSessionID, "parent", "", "only sessions spawned by this parent")
	f.StringVar(&filter.Status, "status", "", "only sessions in this status")
	f.IntVar(&filter.Limit, "limit", 0, "maximum records (server default when 0)")
	return cmd
}
