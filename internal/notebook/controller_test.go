package notebook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntropiq/pkg/ntropiqtypes"
)

func cmdKey(name string) Key { return Key{Name: name, Focus: FocusNone} }

func newControlled(t *testing.T, cells int) (*fixture, *Session, *Controller) {
	t.Helper()
	f := newFixture()
	s := newNotebook(t, f)
	for i := 1; i < cells; i++ {
		_, err := s.InsertCell(context.Background(), ntropiqtypes.CellPrompt, "")
		require.NoError(t, err)
	}
	require.NoError(t, s.SetActive(s.Cells()[0].ID))
	c := NewController(s, f.clock)
	t.Cleanup(c.Close)
	return f, s, c
}

func enterCommandMode(t *testing.T, c *Controller) {
	t.Helper()
	eff, err := c.HandleKey(context.Background(), Key{Name: "Escape", Focus: FocusCell})
	require.NoError(t, err)
	require.True(t, eff.Blur)
	require.Equal(t, CommandMode, c.Mode())
}

func TestController_ModeSwitching(t *testing.T) {
	ctx := context.Background()
	_, s, c := newControlled(t, 1)
	assert.Equal(t, EditMode, c.Mode())

	// Escape from outside a cell field does nothing.
	eff, err := c.HandleKey(ctx, Key{Name: "Escape", Focus: FocusNone})
	require.NoError(t, err)
	assert.False(t, eff.Handled)
	assert.Equal(t, EditMode, c.Mode())

	enterCommandMode(t, c)

	// Enter while an input has focus stays in command mode.
	eff, err = c.HandleKey(ctx, Key{Name: "Enter", Focus: FocusInput})
	require.NoError(t, err)
	assert.False(t, eff.Handled)
	assert.Equal(t, CommandMode, c.Mode())

	eff, err = c.HandleKey(ctx, cmdKey("Enter"))
	require.NoError(t, err)
	assert.Equal(t, EditMode, c.Mode())
	assert.Equal(t, s.Active(), eff.FocusCell)
}

func TestController_ShortcutsOnlyInCommandMode(t *testing.T) {
	ctx := context.Background()
	_, s, c := newControlled(t, 2)
	first := s.Active()

	eff, err := c.HandleKey(ctx, cmdKey("j"))
	require.NoError(t, err)
	assert.False(t, eff.Handled)
	assert.Equal(t, first, s.Active())

	enterCommandMode(t, c)
	eff, err = c.HandleKey(ctx, Key{Name: "j", Focus: FocusCell})
	require.NoError(t, err)
	assert.False(t, eff.Handled)
	assert.Equal(t, first, s.Active())
}

func TestController_Navigation(t *testing.T) {
	ctx := context.Background()
	_, s, c := newControlled(t, 3)
	ids := cellIDs(s)
	enterCommandMode(t, c)

	for _, step := range []struct {
		key  string
		want string
	}{
		{"k", ids[0]},
		{"j", ids[1]},
		{"ArrowDown", ids[2]},
		{"j", ids[2]},
		{"ArrowUp", ids[1]},
	} {
		_, err := c.HandleKey(ctx, cmdKey(step.key))
		require.NoError(t, err)
		assert.Equal(t, step.want, s.Active(), "after %s", step.key)
	}
}

func TestController_InsertAboveAndBelow(t *testing.T) {
	ctx := context.Background()
	_, s, c := newControlled(t, 1)
	first := s.Active()
	enterCommandMode(t, c)

	_, err := c.HandleKey(ctx, cmdKey("a"))
	require.NoError(t, err)
	above := s.Active()
	assert.Equal(t, []string{above, first}, cellIDs(s))

	require.NoError(t, s.SetActive(first))
	_, err = c.HandleKey(ctx, cmdKey("b"))
	require.NoError(t, err)
	below := s.Active()
	assert.Equal(t, []string{above, first, below}, cellIDs(s))
	for _, cell := range s.Cells() {
		assert.Equal(t, ntropiqtypes.CellPrompt, cell.Kind)
	}
}

func TestController_ConvertShortcuts(t *testing.T) {
	ctx := context.Background()
	_, s, c := newControlled(t, 1)
	id := s.Active()
	enterCommandMode(t, c)

	_, err := c.HandleKey(ctx, cmdKey("m"))
	require.NoError(t, err)
	cell, _ := s.Cell(id)
	assert.Equal(t, ntropiqtypes.CellPrompt, cell.Kind)

	_, err = c.HandleKey(ctx, cmdKey("y"))
	require.NoError(t, err)
	cell, _ = s.Cell(id)
	assert.Equal(t, ntropiqtypes.CellCode, cell.Kind)

	_, err = c.HandleKey(ctx, cmdKey("m"))
	require.NoError(t, err)
	cell, _ = s.Cell(id)
	assert.Equal(t, ntropiqtypes.CellPrompt, cell.Kind)
}

func TestController_DoubleDeleteWithinWindow(t *testing.T) {
	ctx := context.Background()
	f, s, c := newControlled(t, 3)
	ids := cellIDs(s)
	require.NoError(t, s.SetActive(ids[1]))
	enterCommandMode(t, c)

	_, err := c.HandleKey(ctx, cmdKey("d"))
	require.NoError(t, err)
	assert.Len(t, s.Cells(), 3)

	f.clock.Advance(499 * time.Millisecond)
	_, err = c.HandleKey(ctx, cmdKey("d"))
	require.NoError(t, err)

	assert.Equal(t, []string{ids[0], ids[2]}, cellIDs(s))
	assert.Equal(t, ids[2], s.Active())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestController_DeleteWindowExpires(t *testing.T) {
	ctx := context.Background()
	f, s, c := newControlled(t, 2)
	enterCommandMode(t, c)

	_, err := c.HandleKey(ctx, cmdKey("d"))
	require.NoError(t, err)
	f.clock.Advance(DeleteWindow)

	// This press re-arms instead of deleting.
	_, err = c.HandleKey(ctx, cmdKey("d"))
	require.NoError(t, err)
	assert.Len(t, s.Cells(), 2)

	// A fresh second press inside the new window deletes.
	f.clock.Advance(100 * time.Millisecond)
	_, err = c.HandleKey(ctx, cmdKey("d"))
	require.NoError(t, err)
	assert.Len(t, s.Cells(), 1)
}

func TestController_DoubleDeleteKeepsLastCell(t *testing.T) {
	ctx := context.Background()
	_, s, c := newControlled(t, 1)
	enterCommandMode(t, c)

	_, err := c.HandleKey(ctx, cmdKey("d"))
	require.NoError(t, err)
	_, err = c.HandleKey(ctx, cmdKey("d"))
	require.NoError(t, err)
	assert.Len(t, s.Cells(), 1)
}

func TestController_RunShortcutsWorkInBothModes(t *testing.T) {
	ctx := context.Background()
	f, s, c := newControlled(t, 2)
	ids := cellIDs(s)
	require.NoError(t, s.UpdateContent(ctx, ids[0], "first question"))
	require.NoError(t, s.UpdateContent(ctx, ids[1], "second question"))

	// Edit mode, typing in the field.
	eff, err := c.HandleKey(ctx, Key{Name: "Enter", Ctrl: true, Focus: FocusCell})
	require.NoError(t, err)
	assert.True(t, eff.Handled)
	assert.Equal(t, ids[0], s.Active())
	assert.Equal(t, []string{"first question"}, f.collab.queries)

	enterCommandMode(t, c)
	_, err = c.HandleKey(ctx, Key{Name: "Enter", Shift: true})
	require.NoError(t, err)
	assert.Equal(t, ids[1], s.Active())

	_, err = c.HandleKey(ctx, Key{Name: "Enter", Shift: true})
	require.NoError(t, err)
	assert.Len(t, s.Cells(), 3)
	assert.Equal(t, []string{"first question", "first question", "second question"}, f.collab.queries)
}

func TestController_DialogSuppressesShortcuts(t *testing.T) {
	ctx := context.Background()
	f, s, c := newControlled(t, 2)
	require.NoError(t, s.UpdateContent(ctx, s.Active(), "question"))
	enterCommandMode(t, c)
	c.SetDialogOpen(true)

	for _, k := range []Key{cmdKey("j"), cmdKey("a"), cmdKey("d"), cmdKey("d"), {Name: "Enter", Shift: true}, {Name: "Enter", Ctrl: true}} {
		eff, err := c.HandleKey(ctx, k)
		require.NoError(t, err)
		assert.False(t, eff.Handled)
	}
	assert.Len(t, s.Cells(), 2)
	assert.Empty(t, f.collab.queries)

	c.SetDialogOpen(false)
	eff, err := c.HandleKey(ctx, cmdKey("j"))
	require.NoError(t, err)
	assert.True(t, eff.Handled)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "edit", EditMode.String())
	assert.Equal(t, "command", CommandMode.String())
}
