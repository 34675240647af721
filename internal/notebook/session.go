// Package notebook implements the notebook session: an ordered list of prompt, code
// and output cells with an active cursor, plus the command/edit keyboard controller.
//
// Cells are always addressed by id. Prompt cells are answered by the insight
// collaborator and code cells by the analysis collaborator; output cells never run.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"ntropiq/internal/clock"
	"ntropiq/internal/logger"
	"ntropiq/internal/store"
	"ntropiq/internal/testutils"
	"ntropiq/pkg/ntropiqtypes"
)

// Sentinel errors.
var (
	ErrCellNotFound      = errors.New("cell not found")
	ErrLastCell          = errors.New("cannot delete the last cell")
	ErrInvalidConversion = errors.New("cells convert only between prompt and code")
	ErrInvalidKind       = errors.New("unknown cell kind")
)

// DefaultName is the name of a new notebook.
const DefaultName = "Untitled notebook"

// DefaultLanguage is sent with code cells to the analysis collaborator.
const DefaultLanguage = "python"

// DefaultRunTimeout bounds a single cell run.
const DefaultRunTimeout = 60 * time.Second

// Direction is a cell move direction.
type Direction string

// Move directions.
const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Config wires a Session to its collaborators.
type Config struct {
	Store      *store.Collection[ntropiqtypes.NotebookSession]
	Insights   ntropiqtypes.InsightGenerator
	Analyzer   ntropiqtypes.CodeAnalyzer
	Clock      clock.Clock
	IDs        testutils.IDFunc
	RunTimeout time.Duration
	Language   string
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.IDs == nil {
		c.IDs = testutils.RandomIDs()
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.Insights == nil {
		c.Insights = ntropiqtypes.Unconfigured{}
	}
	if c.Analyzer == nil {
		c.Analyzer = ntropiqtypes.Unconfigured{}
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
}

// Session is one notebook. Methods are safe for concurrent use; Run calls are serialised.
type Session struct {
	cfg    Config
	logger *log.Logger

	turn sync.Mutex

	mu  sync.Mutex
	rec ntropiqtypes.NotebookSession
	// saved is the record as last written to the store. A zero UpdatedAt means never written.
	saved  ntropiqtypes.NotebookSession
	active string
	epoch  uint64
}

// Open resumes the last active notebook, or creates one.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg.applyDefaults()
	id, err := cfg.Store.LastActive(ctx)
	if err != nil {
		return nil, err
	}
	if id != "" {
		s, err := OpenByID(ctx, cfg, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return New(ctx, cfg)
}

// OpenByID loads a stored notebook and marks it last active. Cells left running by an
// earlier process are marked idle, and an empty notebook is reseeded.
func OpenByID(ctx context.Context, cfg Config, id string) (*Session, error) {
	cfg.applyDefaults()
	rec, err := cfg.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cfg.Store.SetLastActive(ctx, id); err != nil {
		return nil, err
	}
	s := newSession(cfg, rec)
	s.saved = rec
	s.saved.Cells = copyCells(rec.Cells)

	s.mu.Lock()
	defer s.mu.Unlock()
	dirty := false
	for i := range s.rec.Cells {
		if s.rec.Cells[i].IsRunning {
			s.rec.Cells[i].IsRunning = false
			dirty = true
		}
	}
	if len(s.rec.Cells) == 0 {
		s.rec.Cells = append(s.rec.Cells, s.newCellLocked(ntropiqtypes.CellPrompt))
		dirty = true
	}
	s.active = s.rec.Cells[0].ID
	if s.indexLocked(rec.ActiveCellID) >= 0 {
		s.active = rec.ActiveCellID
	}
	if dirty {
		if err := s.persistLocked(ctx); err != nil {
			return nil, err
		}
	}
	logger.SessionOperation("notebook", id, "open")
	return s, nil
}

// New creates and persists a notebook seeded with one empty prompt cell.
func New(ctx context.Context, cfg Config) (*Session, error) {
	cfg.applyDefaults()
	s := newSession(cfg, ntropiqtypes.NotebookSession{})
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.resetLocked(ctx); err != nil {
		return nil, err
	}
	logger.SessionOperation("notebook", s.rec.ID, "create")
	return s, nil
}

func newSession(cfg Config, rec ntropiqtypes.NotebookSession) *Session {
	if rec.Cells == nil {
		rec.Cells = []ntropiqtypes.Cell{}
	}
	return &Session{cfg: cfg, logger: logger.NewStyledLogger("Notebook"), rec: rec}
}

// ID returns the notebook id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.ID
}

// Name returns the notebook name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Name
}

// Bookmarked reports the bookmark flag.
func (s *Session) Bookmarked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Bookmarked
}

// UpdatedAt returns the time of the last persisted mutation.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.UpdatedAt
}

// Cells returns a copy of the cell list.
func (s *Session) Cells() []ntropiqtypes.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCells(s.rec.Cells)
}

// Cell returns a copy of the cell with id.
func (s *Session) Cell(id string) (ntropiqtypes.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ntropiqtypes.Cell{}, ErrCellNotFound
	}
	return copyCells(s.rec.Cells[i : i+1])[0], nil
}

// Snapshot returns a copy of the persisted record.
func (s *Session) Snapshot() ntropiqtypes.NotebookSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Active returns the id of the active cell.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive moves the cursor to id. The cursor is stored with the next save, or
// by SaveCursor.
func (s *Session) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return ErrCellNotFound
	}
	s.active = id
	return nil
}

// SaveCursor persists the active cell when it differs from the stored one.
func (s *Session) SaveCursor(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved.ActiveCellID == s.active {
		return nil
	}
	return s.persistLocked(ctx)
}

// Index returns the position of id, or -1.
func (s *Session) Index(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id)
}

// InsertCell adds an empty cell after afterID, or at the end when afterID is empty.
// The new cell becomes active.
func (s *Session) InsertCell(ctx context.Context, kind ntropiqtypes.CellKind, afterID string) (ntropiqtypes.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := len(s.rec.Cells)
	if afterID != "" {
		i := s.indexLocked(afterID)
		if i < 0 {
			return ntropiqtypes.Cell{}, fmt.Errorf("insert after %s: %w", afterID, ErrCellNotFound)
		}
		pos = i + 1
	}
	return s.insertAtLocked(ctx, kind, pos)
}

// InsertCellBefore adds an empty cell immediately before beforeID and makes it active.
func (s *Session) InsertCellBefore(ctx context.Context, kind ntropiqtypes.CellKind, beforeID string) (ntropiqtypes.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(beforeID)
	if i < 0 {
		return ntropiqtypes.Cell{}, fmt.Errorf("insert before %s: %w", beforeID, ErrCellNotFound)
	}
	return s.insertAtLocked(ctx, kind, i)
}

func (s *Session) insertAtLocked(ctx context.Context, kind ntropiqtypes.CellKind, pos int) (ntropiqtypes.Cell, error) {
	if !kind.Valid() {
		return ntropiqtypes.Cell{}, fmt.Errorf("%q: %w", kind, ErrInvalidKind)
	}
	cell := s.newCellLocked(kind)
	cells := make([]ntropiqtypes.Cell, 0, len(s.rec.Cells)+1)
	cells = append(cells, s.rec.Cells[:pos]...)
	cells = append(cells, cell)
	cells = append(cells, s.rec.Cells[pos:]...)
	s.rec.Cells = cells
	s.active = cell.ID
	return cell, s.persistLocked(ctx)
}

// DeleteCell removes a cell. The last remaining cell is never removed. When the active
// cell is deleted the cursor moves to the cell now at its position, or the new last cell.
func (s *Session) DeleteCell(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrCellNotFound
	}
	if len(s.rec.Cells) <= 1 {
		return ErrLastCell
	}
	s.rec.Cells = append(s.rec.Cells[:i:i], s.rec.Cells[i+1:]...)
	if s.active == id || s.indexLocked(s.active) < 0 {
		next := i
		if next >= len(s.rec.Cells) {
			next = len(s.rec.Cells) - 1
		}
		s.active = s.rec.Cells[next].ID
	}
	return s.persistLocked(ctx)
}

// MoveCell swaps a cell with its neighbour. Moves past either end are no-ops.
func (s *Session) MoveCell(ctx context.Context, id string, dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrCellNotFound
	}
	j := i + 1
	if dir == Up {
		j = i - 1
	}
	if j < 0 || j >= len(s.rec.Cells) {
		return nil
	}
	s.rec.Cells[i], s.rec.Cells[j] = s.rec.Cells[j], s.rec.Cells[i]
	return s.persistLocked(ctx)
}

// UpdateContent replaces a cell's text. Run state is left alone.
func (s *Session) UpdateContent(ctx context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrCellNotFound
	}
	s.rec.Cells[i].Content = text
	return s.persistLocked(ctx)
}

// ConvertKind switches a cell between prompt and code, keeping its content.
func (s *Session) ConvertKind(ctx context.Context, id string, to ntropiqtypes.CellKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrCellNotFound
	}
	from := s.rec.Cells[i].Kind
	if !convertible(from) || !convertible(to) {
		return fmt.Errorf("%s to %s: %w", from, to, ErrInvalidConversion)
	}
	if from == to {
		return nil
	}
	s.rec.Cells[i].Kind = to
	return s.persistLocked(ctx)
}

func convertible(k ntropiqtypes.CellKind) bool {
	return k == ntropiqtypes.CellPrompt || k == ntropiqtypes.CellCode
}

// Rename sets the notebook name. Blank names are ignored.
func (s *Session) Rename(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Name = name
	return s.persistLocked(ctx)
}

// ToggleBookmark flips the bookmark flag.
func (s *Session) ToggleBookmark(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Bookmarked = !s.rec.Bookmarked
	return s.persistLocked(ctx)
}

// Delete removes the stored notebook and resets to a fresh one under a new id.
// Runs still in flight for the deleted notebook are discarded.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cfg.Store.Delete(ctx, s.rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	logger.SessionOperation("notebook", s.rec.ID, "delete")
	return s.resetLocked(ctx)
}

func (s *Session) resetLocked(ctx context.Context) error {
	s.epoch++
	s.rec = ntropiqtypes.NotebookSession{
		SchemaVersion: ntropiqtypes.SchemaVersion,
		ID:            s.cfg.IDs(),
		Name:          DefaultName,
	}
	s.rec.Cells = []ntropiqtypes.Cell{s.newCellLocked(ntropiqtypes.CellPrompt)}
	s.active = s.rec.Cells[0].ID
	s.saved = s.snapshotLocked()
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	return s.cfg.Store.SetLastActive(ctx, s.rec.ID)
}

func (s *Session) newCellLocked(kind ntropiqtypes.CellKind) ntropiqtypes.Cell {
	return ntropiqtypes.Cell{
		ID:        s.cfg.IDs(),
		Kind:      kind,
		CreatedAt: s.cfg.Clock.Now(),
	}
}

func (s *Session) indexLocked(id string) int {
	for i, c := range s.rec.Cells {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) snapshotLocked() ntropiqtypes.NotebookSession {
	rec := s.rec
	rec.Cells = copyCells(s.rec.Cells)
	rec.ActiveCellID = s.active
	return rec
}

// persistLocked stamps a fresh updatedAt and flushes the record. When the write fails
// the unsaved change is discarded: after a conflict the stored record is adopted,
// otherwise the last saved state is restored.
func (s *Session) persistLocked(ctx context.Context) error {
	next := s.snapshotLocked()
	next.UpdatedAt = store.NextUpdate(s.rec.UpdatedAt, s.cfg.Clock.Now())
	next.SchemaVersion = ntropiqtypes.SchemaVersion
	if err := s.cfg.Store.Save(ctx, next, s.saved.UpdatedAt); err != nil {
		s.rollbackLocked(ctx, err)
		return fmt.Errorf("persist notebook %s: %w", next.ID, err)
	}
	s.rec.UpdatedAt = next.UpdatedAt
	s.rec.SchemaVersion = next.SchemaVersion
	s.saved = next
	return nil
}

func (s *Session) rollbackLocked(ctx context.Context, cause error) {
	restore := s.saved
	if errors.Is(cause, store.ErrConflict) {
		stored, err := s.cfg.Store.Load(ctx, s.rec.ID)
		if err == nil {
			s.logger.Warn("Notebook changed elsewhere, reloaded", "session", stored.ID)
			restore = stored
		} else {
			s.logger.Error("Reload after conflict failed", "session", s.rec.ID, "error", err)
		}
	}
	s.saved = restore
	s.saved.Cells = copyCells(restore.Cells)
	s.rec = restore
	s.rec.Cells = copyCells(restore.Cells)
	if s.indexLocked(s.active) < 0 {
		s.active = ""
		if len(s.rec.Cells) > 0 {
			s.active = s.rec.Cells[0].ID
		}
	}
}

func copyCells(cells []ntropiqtypes.Cell) []ntropiqtypes.Cell {
	out := make([]ntropiqtypes.Cell, len(cells))
	for i, c := range cells {
		if c.Output != nil {
			o := *c.Output
			c.Output = &o
		}
		out[i] = c
	}
	return out
}
