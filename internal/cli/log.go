package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docmodel/internal/change"
	"github.com/roach88/docmodel/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Since    int64
	Ops      bool // print operation lines
}

// LogEntry is one journaled change.
type LogEntry struct {
	Seq    int64         `json:"seq"`
	Change change.Record `json:"change"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List journaled changes",
		Long: `List the changes of a journal in journal order. Every change is
verified against its stored digest.

Examples:
  docmodel log --db ./doc.db
  docmodel log --db ./doc.db --since 40 --ops
  docmodel log --db ./doc.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only changes after this journal seq")
	cmd.Flags().BoolVar(&opts.Ops, "ops", false, "print operation lines")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ReadChanges(context.Background(), opts.Since)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read journal", err)
	}

	log := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		rec, err := e.Change.Record()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode change", err)
		}
		log = append(log, LogEntry{Seq: e.Seq, Change: rec})
	}

	return opts.formatter(cmd).Success(log, func(w io.Writer) {
		if len(log) == 0 {
			fmt.Fprintln(w, "No changes.")
			return
		}
		for _, e := range log {
			ts := "-"
			if e.Change.Timestamp != 0 {
				ts = time.UnixMilli(e.Change.Timestamp).UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%6d  %-36s  %-12s  %-20s  %s  %d ops\n",
				e.Seq, e.Change.ID, e.Change.State, ts, userOrDash(e.Change.UserID), len(e.Change.Ops))
			if opts.Ops {
				for _, line := range e.Change.Ops {
					fmt.Fprintf(w, "        %s\n", line)
				}
			}
		}
	})
}

func userOrDash(u string) string {
	if u == "" {
		return "-"
	}
	return u
}

// openExisting opens a journal that must already exist; Open would
// silently create a new empty database.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
