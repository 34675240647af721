package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ntropiq/internal/notebook"
)

var keyNames = map[string]string{
	"esc":    "Escape",
	"escape": "Escape",
	"enter":  "Enter",
	"return": "Enter",
	"up":     "ArrowUp",
	"down":   "ArrowDown",
}

// parseKey turns names like "j", "shift+enter" or "esc" into a key press. Escape is
// sent from a focused cell so it switches to command mode; everything else is sent
// with no text field focused.
func parseKey(s string) (notebook.Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	var k notebook.Key
	for _, mod := range parts[:len(parts)-1] {
		switch mod {
		case "shift":
			k.Shift = true
		case "ctrl", "cmd", "meta":
			k.Ctrl = true
		default:
			return notebook.Key{}, fmt.Errorf("unknown modifier %q in %q", mod, s)
		}
	}
	name := parts[len(parts)-1]
	if full, ok := keyNames[name]; ok {
		name = full
	} else if len(name) != 1 {
		return notebook.Key{}, fmt.Errorf("unknown key %q", s)
	}
	k.Name = name
	if name == "Escape" {
		k.Focus = notebook.FocusCell
	}
	return k, nil
}

func init() {
	keysCmd := &cobra.Command{
		Use:   "keys <key>...",
		Short: "Replay notebook shortcuts, e.g. esc j j y shift+enter",
		Long: "Replay notebook keyboard shortcuts against the active cell. The session starts in edit\n" +
			"mode, so begin with esc to reach command mode. The resulting cursor is saved and\n" +
			"used by run when no cell id is given.",
		Args: cobra.MinimumNArgs(1),
		RunE: notebookAction(func(cmd *cobra.Command, s *notebook.Session, args []string) error {
			keys := make([]notebook.Key, 0, len(args))
			for _, arg := range args {
				k, err := parseKey(arg)
				if err != nil {
					return err
				}
				keys = append(keys, k)
			}

			ctx := commandContext(cmd)
			controller := notebook.NewController(s, nil)
			defer controller.Close()
			for i, k := range keys {
				effect, err := controller.HandleKey(ctx, k)
				if err != nil {
					return fmt.Errorf("key %s: %w", args[i], err)
				}
				if !effect.Handled {
					fmt.Fprintf(cmd.ErrOrStderr(), "ignored %s in %s mode\n", args[i], controller.Mode())
				}
			}
			return s.SaveCursor(ctx)
		}),
	}
	notebookCmd.AddCommand(keysCmd)
}
