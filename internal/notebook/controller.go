package notebook

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"ntropiq/internal/clock"
	"ntropiq/internal/logger"
	"ntropiq/pkg/ntropiqtypes"
)

// DeleteWindow is how long the first "d" press waits for the second.
const DeleteWindow = 500 * time.Millisecond

// Mode is the keyboard mode.
type Mode int

// Keyboard modes.
const (
	EditMode Mode = iota
	CommandMode
)

func (m Mode) String() string {
	if m == CommandMode {
		return "command"
	}
	return "edit"
}

// Focus describes what holds keyboard focus when a key is pressed.
type Focus int

// Focus targets.
const (
	FocusNone Focus = iota
	FocusCell
	FocusInput
)

// Key is one key press.
type Key struct {
	Name  string
	Shift bool
	Ctrl  bool
	Focus Focus
}

// Effect tells the view what to do after a key was handled.
type Effect struct {
	Handled bool
	// FocusCell is the id of the cell whose text field should take focus.
	FocusCell string
	// Blur drops focus from the current text field.
	Blur bool
}

// Controller maps key presses to notebook operations on the active cell.
type Controller struct {
	session *Session
	clock   clock.Clock
	logger  *log.Logger

	mu          sync.Mutex
	mode        Mode
	dialogOpen  bool
	deleteArmed bool
	deleteEpoch uint64
	deleteTimer clock.Timer
}

// NewController creates a controller in edit mode.
func NewController(s *Session, c clock.Clock) *Controller {
	if c == nil {
		c = clock.Real()
	}
	return &Controller{session: s, clock: c, logger: logger.NewStyledLogger("Keys")}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetDialogOpen suspends every shortcut while a modal dialog is shown.
func (c *Controller) SetDialogOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialogOpen = open
}

// Close cancels a pending delete window.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmLocked()
}

// HandleKey applies one key press. Run shortcuts work in both modes; single-key
// shortcuts only in command mode with no text field focused.
func (c *Controller) HandleKey(ctx context.Context, k Key) (Effect, error) {
	c.mu.Lock()
	if c.dialogOpen {
		c.mu.Unlock()
		return Effect{}, nil
	}
	active := c.session.Active()

	switch {
	case k.Name == "Enter" && k.Shift:
		c.mu.Unlock()
		return Effect{Handled: true}, c.session.RunAndAdvance(ctx, active)
	case k.Name == "Enter" && k.Ctrl:
		c.mu.Unlock()
		return Effect{Handled: true}, c.session.Run(ctx, active)
	case k.Name == "Escape" && k.Focus == FocusCell:
		c.mode = CommandMode
		c.mu.Unlock()
		return Effect{Handled: true, Blur: true}, nil
	case k.Name == "Enter" && c.mode == CommandMode && k.Focus == FocusNone:
		c.mode = EditMode
		c.mu.Unlock()
		return Effect{Handled: true, FocusCell: active}, nil
	}

	if c.mode != CommandMode || k.Focus != FocusNone {
		c.mu.Unlock()
		return Effect{}, nil
	}

	if k.Name == "d" {
		if !c.deleteArmed {
			c.armLocked()
			c.mu.Unlock()
			return Effect{Handled: true}, nil
		}
		c.disarmLocked()
		c.mu.Unlock()
		err := c.session.DeleteCell(ctx, active)
		if errors.Is(err, ErrLastCell) {
			err = nil
		}
		return Effect{Handled: true}, err
	}
	c.mu.Unlock()

	switch k.Name {
	case "k", "ArrowUp":
		return Effect{Handled: true}, c.selectRelative(-1)
	case "j", "ArrowDown":
		return Effect{Handled: true}, c.selectRelative(1)
	case "a":
		_, err := c.session.InsertCellBefore(ctx, ntropiqtypes.CellPrompt, active)
		return Effect{Handled: true}, err
	case "b":
		_, err := c.session.InsertCell(ctx, ntropiqtypes.CellPrompt, active)
		return Effect{Handled: true}, err
	case "m":
		return Effect{Handled: true}, c.convertActive(ctx, ntropiqtypes.CellCode, ntropiqtypes.CellPrompt)
	case "y":
		return Effect{Handled: true}, c.convertActive(ctx, ntropiqtypes.CellPrompt, ntropiqtypes.CellCode)
	}
	return Effect{}, nil
}

func (c *Controller) selectRelative(delta int) error {
	cells := c.session.Cells()
	if len(cells) == 0 {
		return nil
	}
	i := c.session.Index(c.session.Active()) + delta
	if i < 0 {
		i = 0
	}
	if i >= len(cells) {
		i = len(cells) - 1
	}
	return c.session.SetActive(cells[i].ID)
}

// convertActive converts the active cell only when it currently has kind from.
func (c *Controller) convertActive(ctx context.Context, from, to ntropiqtypes.CellKind) error {
	cell, err := c.session.Cell(c.session.Active())
	if err != nil {
		return err
	}
	if cell.Kind != from {
		return nil
	}
	return c.session.ConvertKind(ctx, cell.ID, to)
}

func (c *Controller) armLocked() {
	c.deleteArmed = true
	c.deleteEpoch++
	epoch := c.deleteEpoch
	c.deleteTimer = c.clock.AfterFunc(DeleteWindow, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.deleteEpoch == epoch {
			c.deleteArmed = false
			c.deleteTimer = nil
		}
	})
}

func (c *Controller) disarmLocked() {
	if c.deleteTimer != nil {
		c.deleteTimer.Stop()
		c.deleteTimer = nil
	}
	c.deleteArmed = false
	c.deleteEpoch++
}
