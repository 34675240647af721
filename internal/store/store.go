package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"ntropiq/internal/logger"
	"ntropiq/pkg/ntropiqtypes"
)

// Sentinel errors returned by Collection.
var (
	ErrNotFound = errors.New("session not found")
	ErrConflict = errors.New("session was modified concurrently")
)

// Persisted keys.
const (
	ConversationsKey      = "ntropiq:chats"
	LastConversationIDKey = "ntropiq:lastChatId"
	NotebooksKey          = "ntropiq:notebooks"
	LastNotebookIDKey     = "ntropiq:lastNotebookId"

	corruptSuffix = ":corrupt"
)

// Record is implemented by the persisted session types.
type Record interface {
	RecordID() string
	Updated() time.Time
	IsBookmarked() bool
}

// Collection is a list of records stored as one JSON value, plus a last-active pointer.
// Read-modify-write cycles are serialised per collection.
type Collection[T Record] struct {
	kv      KV
	key     string
	lastKey string
	decode  func(json.RawMessage) (T, error)
	logger  *log.Logger

	mu sync.Mutex
}

// Store holds both session collections over one KV.
type Store struct {
	kv            KV
	Conversations *Collection[ntropiqtypes.ConversationSession]
	Notebooks     *Collection[ntropiqtypes.NotebookSession]
}

// New creates a Store over kv.
func New(kv KV) *Store {
	l := logger.NewStyledLogger("Store")
	return &Store{
		kv: kv,
		Conversations: &Collection[ntropiqtypes.ConversationSession]{
			kv: kv, key: ConversationsKey, lastKey: LastConversationIDKey,
			decode: decodeConversation, logger: l,
		},
		Notebooks: &Collection[ntropiqtypes.NotebookSession]{
			kv: kv, key: NotebooksKey, lastKey: LastNotebookIDKey,
			decode: decodeNotebook, logger: l,
		},
	}
}

// Close closes the underlying KV.
func (s *Store) Close() error {
	return s.kv.Close()
}

// NextUpdate returns the updatedAt to stamp on a mutation made at now.
// The result is always after prev, even when the clock has not moved.
func NextUpdate(prev, now time.Time) time.Time {
	now = now.Round(0)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

// Load returns the record with id.
func (c *Collection[T]) Load(ctx context.Context, id string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	records, err := c.readLocked(ctx)
	if err != nil {
		return zero, err
	}
	for _, r := range records {
		if r.RecordID() == id {
			return r, nil
		}
	}
	return zero, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Save upserts rec. expected is the updatedAt the caller last read; a stored record
// with a different updatedAt is reported as ErrConflict and left untouched.
func (c *Collection[T]) Save(ctx context.Context, rec T, expected time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.readLocked(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, r := range records {
		if r.RecordID() != rec.RecordID() {
			continue
		}
		if !r.Updated().Equal(expected) {
			return fmt.Errorf("%s: stored %s, expected %s: %w",
				rec.RecordID(), r.Updated().Format(time.RFC3339Nano), expected.Format(time.RFC3339Nano), ErrConflict)
		}
		records[i] = rec
		replaced = true
		break
	}
	if !replaced {
		records = append(records, rec)
	}
	return c.writeLocked(ctx, records)
}

// Delete removes the record with id and clears the last-active pointer if it named it.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.readLocked(ctx)
	if err != nil {
		return err
	}
	kept := records[:0]
	found := false
	for _, r := range records {
		if r.RecordID() == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := c.writeLocked(ctx, kept); err != nil {
		return err
	}
	last, err := c.lastActiveLocked(ctx)
	if err != nil {
		return err
	}
	if last == id {
		if err := c.kv.Delete(ctx, c.lastKey); err != nil {
			return fmt.Errorf("clear last active: %w", err)
		}
	}
	return nil
}

// Recent returns every record, most recently updated first.
func (c *Collection[T]) Recent(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.readLocked(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Updated().After(records[j].Updated())
	})
	return records, nil
}

// Bookmarked returns the bookmarked records, most recently updated first.
func (c *Collection[T]) Bookmarked(ctx context.Context) ([]T, error) {
	records, err := c.Recent(ctx)
	if err != nil {
		return nil, err
	}
	marked := make([]T, 0, len(records))
	for _, r := range records {
		if r.IsBookmarked() {
			marked = append(marked, r)
		}
	}
	return marked, nil
}

// LastActive returns the last active id, or "" if none is recorded.
func (c *Collection[T]) LastActive(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActiveLocked(ctx)
}

// SetLastActive records id as the last active session.
func (c *Collection[T]) SetLastActive(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Put(ctx, c.lastKey, []byte(id)); err != nil {
		return fmt.Errorf("set last active: %w", err)
	}
	return nil
}

func (c *Collection[T]) lastActiveLocked(ctx context.Context) (string, error) {
	raw, err := c.kv.Get(ctx, c.lastKey)
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get last active: %w", err)
	}
	return string(raw), nil
}

// readLocked decodes the collection. Unreadable data yields an empty collection and
// is preserved under the corrupt key.
func (c *Collection[T]) readLocked(ctx context.Context) ([]T, error) {
	raw, err := c.kv.Get(ctx, c.key)
	if errors.Is(err, ErrKeyNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.key, err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		c.logger.Warn("Corrupt session data, starting empty", "key", c.key, "error", err)
		if perr := c.kv.Put(ctx, c.key+corruptSuffix, raw); perr != nil {
			c.logger.Error("Failed to preserve corrupt data", "key", c.key, "error", perr)
		}
		return []T{}, nil
	}

	records := make([]T, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		rec, err := c.decode(item)
		if err != nil {
			c.logger.Warn("Skipping unreadable session record", "key", c.key, "index", i, "error", err)
			continue
		}
		if seen[rec.RecordID()] {
			continue
		}
		seen[rec.RecordID()] = true
		records = append(records, rec)
	}
	return records, nil
}

func (c *Collection[T]) writeLocked(ctx context.Context, records []T) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := c.kv.Put(ctx, c.key, raw); err != nil {
		return fmt.Errorf("write %s: %w", c.key, err)
	}
	return nil
}
