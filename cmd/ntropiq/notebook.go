package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ntropiq/internal/notebook"
	"ntropiq/internal/services"
	"ntropiq/pkg/ntropiqtypes"
)

var (
	notebookID    string
	notebookAfter string
	notebookAll   bool
)

var notebookCmd = &cobra.Command{
	Use:   "notebook",
	Short: "Work with the analytics notebook",
}

// notebookAction opens the selected notebook, runs fn and prints the notebook afterwards.
func notebookAction(fn func(cmd *cobra.Command, s *notebook.Session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := commandContext(cmd)
		var s *notebook.Session
		if notebookID != "" {
			s, err = notebook.OpenByID(ctx, a.notebookConfig(), notebookID)
		} else {
			s, err = notebook.Open(ctx, a.notebookConfig())
		}
		if err != nil {
			return err
		}
		if err := fn(cmd, s, args); err != nil {
			return err
		}
		printNotebook(cmd.OutOrStdout(), a.markdown, s)
		return nil
	}
}

func init() {
	notebookCmd.PersistentFlags().StringVar(&notebookID, "id", "", "Notebook id [default: last active]")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the notebook",
		Args:  cobra.NoArgs,
		RunE:  notebookAction(func(*cobra.Command, *notebook.Session, []string) error { return nil }),
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a notebook and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := notebook.New(commandContext(cmd), a.notebookConfig())
			if err != nil {
				return err
			}
			printNotebook(cmd.OutOrStdout(), a.markdown, s)
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <prompt|code> [content]",
		Short: "Insert a cell",
		Args:  cobra.RangeArgs(1, 2),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			ctx := commandContext(cmd)
			after := notebookAfter
			if after == "" {
				cells := s.Cells()
				after = cells[len(cells)-1].ID
			}
			cell, err := s.InsertCell(ctx, ntropiqtypes.CellKind(args[0]), after)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				return s.UpdateContent(ctx, cell.ID, args[1])
			}
			return nil
		}),
	}
	addCmd.Flags().StringVar(&notebookAfter, "after", "", "Insert after this cell [default: last cell]")

	editCmd := &cobra.Command{
		Use:   "edit <cell-id> <content>",
		Short: "Replace a cell's content",
		Args:  cobra.ExactArgs(2),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			before, err := s.Cell(args[0])
			if err != nil {
				return err
			}
			if err := s.UpdateContent(commandContext(cmd), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprint(cmd.ErrOrStderr(), contentDiff(before.Content, args[1]))
			return nil
		}),
	}

	runCmd := &cobra.Command{
		Use:   "run [cell-id]",
		Short: "Run a cell (default: the saved cursor), or every prompt and code cell with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			ctx := commandContext(cmd)
			if notebookAll {
				for _, cell := range s.Cells() {
					if cell.Kind == ntropiqtypes.CellOutput {
						continue
					}
					if err := s.Run(ctx, cell.ID); err != nil {
						return err
					}
				}
				return nil
			}
			id := s.Active()
			if len(args) == 1 {
				id = args[0]
			}
			return s.Run(ctx, id)
		}),
	}
	runCmd.Flags().BoolVar(&notebookAll, "all", false, "Run every cell in order")

	rmCmd := &cobra.Command{
		Use:   "rm <cell-id>",
		Short: "Delete a cell",
		Args:  cobra.ExactArgs(1),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			return s.DeleteCell(commandContext(cmd), args[0])
		}),
	}

	moveCmd := &cobra.Command{
		Use:   "move <cell-id> <up|down>",
		Short: "Move a cell one position",
		Args:  cobra.ExactArgs(2),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			dir := notebook.Direction(args[1])
			if dir != notebook.Up && dir != notebook.Down {
				return fmt.Errorf("direction must be up or down, got %q", args[1])
			}
			return s.MoveCell(commandContext(cmd), args[0], dir)
		}),
	}

	convertCmd := &cobra.Command{
		Use:   "convert <cell-id> <prompt|code>",
		Short: "Change a cell's kind",
		Args:  cobra.ExactArgs(2),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			return s.ConvertKind(commandContext(cmd), args[0], ntropiqtypes.CellKind(args[1]))
		}),
	}

	renameCmd := &cobra.Command{
		Use:   "rename <name>",
		Short: "Rename the notebook",
		Args:  cobra.ExactArgs(1),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			return s.Rename(commandContext(cmd), args[0])
		}),
	}

	notebookCmd.AddCommand(showCmd, newCmd, addCmd, editCmd, runCmd, rmCmd, moveCmd, convertCmd, renameCmd)
}

func printNotebook(w io.Writer, md *services.MarkdownService, s *notebook.Session) {
	fmt.Fprintf(w, "%s (%s)\n", s.Name(), s.ID())
	active := s.Active()
	for i, cell := range s.Cells() {
		marker := " "
		if cell.ID == active {
			marker = ">"
		}
		fmt.Fprintf(w, "%s [%d] %s %s\n", marker, i+1, cell.Kind, cell.ID)
		if content := strings.TrimSpace(cell.Content); content != "" {
			for _, line := range strings.Split(content, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		if cell.Output != nil {
			rendered, err := md.Render(*cell.Output)
			if err != nil {
				rendered = *cell.Output + "\n"
			}
			fmt.Fprint(w, rendered)
		}
	}
}
