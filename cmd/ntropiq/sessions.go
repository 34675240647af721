package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ntropiq/internal/logger"
	"ntropiq/internal/store"
)

var (
	sessionsNotebooks  bool
	sessionsBookmarked bool
	exportFormat       string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, show, delete and export stored conversations and notebooks",
}

func init() {
	sessionsCmd.PersistentFlags().BoolVar(&sessionsNotebooks, "notebooks", false, "Operate on notebooks instead of conversations")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE:  withStore(listSessions),
	}
	listCmd.Flags().BoolVar(&sessionsBookmarked, "bookmarked", false, "Only bookmarked sessions")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
			return exportSession(cmd, st, args[0], FormatMarkdown)
		}),
	}

	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a session as json, yaml or markdown",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
			return exportSession(cmd, st, args[0], exportFormat)
		}),
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", FormatJSON, "Export format (json|yaml|markdown)")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
			ctx := commandContext(cmd)
			var err error
			if sessionsNotebooks {
				err = st.Notebooks.Delete(ctx, args[0])
			} else {
				err = st.Conversations.Delete(ctx, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		}),
	}

	sessionsCmd.AddCommand(listCmd, showCmd, exportCmd, deleteCmd)
}

func withStore(fn func(cmd *cobra.Command, st *store.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kv, err := store.OpenKV(cfg.Storage.Driver, cfg.Storage.Path, logger.NewStyledLogger("Storage"))
		if err != nil {
			return err
		}
		st := store.New(kv)
		defer st.Close()
		return fn(cmd, st, args)
	}
}

type sessionRow struct {
	id, name   string
	bookmarked bool
	updated    time.Time
	size       int
}

func listSessions(cmd *cobra.Command, st *store.Store, _ []string) error {
	ctx := commandContext(cmd)
	var rows []sessionRow
	if sessionsNotebooks {
		recs, err := pick(sessionsBookmarked, st.Notebooks)(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			rows = append(rows, sessionRow{r.ID, r.Name, r.Bookmarked, r.UpdatedAt, len(r.Cells)})
		}
	} else {
		recs, err := pick(sessionsBookmarked, st.Conversations)(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			rows = append(rows, sessionRow{r.ID, r.Name, r.Bookmarked, r.UpdatedAt, len(r.Messages)})
		}
	}
	writeRows(cmd.OutOrStdout(), rows, sessionsNotebooks)
	return nil
}

func pick[T store.Record](bookmarked bool, col *store.Collection[T]) func(context.Context) ([]T, error) {
	if bookmarked {
		return col.Bookmarked
	}
	return col.Recent
}

func writeRows(w io.Writer, rows []sessionRow, notebooks bool) {
	sizeHeader := "MESSAGES"
	if notebooks {
		sizeHeader = "CELLS"
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\t%s\tBOOKMARKED\tUPDATED\n", sizeHeader)
	for _, r := range rows {
		mark := ""
		if r.bookmarked {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.id, r.name, r.size, mark, r.updated.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func exportSession(cmd *cobra.Command, st *store.Store, id, format string) error {
	ctx := commandContext(cmd)
	if sessionsNotebooks {
		rec, err := st.Notebooks.Load(ctx, id)
		if err != nil {
			return err
		}
		return exportNotebook(cmd.OutOrStdout(), rec, format)
	}
	rec, err := st.Conversations.Load(ctx, id)
	if err != nil {
		return err
	}
	return exportConversation(cmd.OutOrStdout(), rec, format)
}
