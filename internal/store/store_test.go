package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntropiq/pkg/ntropiqtypes"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func conv(id string, updated time.Time, bookmarked bool) ntropiqtypes.ConversationSession {
	return ntropiqtypes.ConversationSession{
		SchemaVersion: ntropiqtypes.SchemaVersion,
		ID:            id,
		Name:          "chat " + id,
		Bookmarked:    bookmarked,
		UpdatedAt:     updated,
		Messages:      []ntropiqtypes.Message{},
	}
}

func TestCollection_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())

	rec := conv("a", t0, false)
	rec.Messages = append(rec.Messages, ntropiqtypes.Message{ID: "m1", Role: ntropiqtypes.RoleUser, Content: "hi", CreatedAt: t0})
	require.NoError(t, s.Conversations.Save(ctx, rec, time.Time{}))

	got, err := s.Conversations.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "chat a", got.Name)
	assert.True(t, got.UpdatedAt.Equal(t0))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)

	_, err = s.Conversations.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_SaveUpsertsSingleRecordPerID(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())

	require.NoError(t, s.Conversations.Save(ctx, conv("a", t0, false), time.Time{}))
	updated := conv("a", t0.Add(time.Second), true)
	require.NoError(t, s.Conversations.Save(ctx, updated, t0))

	all, err := s.Conversations.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Bookmarked)
}

func TestCollection_SaveDetectsConflict(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())
	require.NoError(t, s.Conversations.Save(ctx, conv("a", t0, false), time.Time{}))

	// Another writer moves the record forward.
	require.NoError(t, s.Conversations.Save(ctx, conv("a", t0.Add(time.Second), false), t0))

	// A stale writer still expects t0.
	err := s.Conversations.Save(ctx, conv("a", t0.Add(2*time.Second), true), t0)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.Conversations.Load(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.Bookmarked)
}

func TestCollection_RecentAndBookmarked(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())
	require.NoError(t, s.Conversations.Save(ctx, conv("old", t0, true), time.Time{}))
	require.NoError(t, s.Conversations.Save(ctx, conv("new", t0.Add(2*time.Hour), false), time.Time{}))
	require.NoError(t, s.Conversations.Save(ctx, conv("mid", t0.Add(time.Hour), true), time.Time{}))

	recent, err := s.Conversations.Recent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, ids(recent))

	marked, err := s.Conversations.Bookmarked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid", "old"}, ids(marked))
}

func TestCollection_DeleteRemovesRecordAndPointer(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())
	require.NoError(t, s.Conversations.Save(ctx, conv("a", t0, false), time.Time{}))
	require.NoError(t, s.Conversations.Save(ctx, conv("b", t0, false), time.Time{}))
	require.NoError(t, s.Conversations.SetLastActive(ctx, "a"))

	require.NoError(t, s.Conversations.Delete(ctx, "a"))

	_, err := s.Conversations.Load(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	last, err := s.Conversations.LastActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, last)

	recent, err := s.Conversations.Recent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(recent))

	assert.ErrorIs(t, s.Conversations.Delete(ctx, "a"), ErrNotFound)
}

func TestCollection_DeleteKeepsOtherPointer(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())
	require.NoError(t, s.Conversations.Save(ctx, conv("a", t0, false), time.Time{}))
	require.NoError(t, s.Conversations.Save(ctx, conv("b", t0, false), time.Time{}))
	require.NoError(t, s.Conversations.SetLastActive(ctx, "b"))

	require.NoError(t, s.Conversations.Delete(ctx, "a"))
	last, err := s.Conversations.LastActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", last)
}

func TestCollection_LastActiveIsPerCollection(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV())
	require.NoError(t, s.Conversations.SetLastActive(ctx, "chat-1"))
	require.NoError(t, s.Notebooks.SetLastActive(ctx, "nb-1"))

	chat, err := s.Conversations.LastActive(ctx)
	require.NoError(t, err)
	nb, err := s.Notebooks.LastActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chat-1", chat)
	assert.Equal(t, "nb-1", nb)
}

func TestCollection_CorruptDataFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, ConversationsKey, []byte("{not json")))
	s := New(kv)

	recent, err := s.Conversations.Recent(ctx)
	require.NoError(t, err)
	assert.Empty(t, recent)

	preserved, err := kv.Get(ctx, ConversationsKey+corruptSuffix)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(preserved))

	// The collection is usable again after the next save.
	require.NoError(t, s.Conversations.Save(ctx, conv("a", t0, false), time.Time{}))
	_, err = s.Conversations.Load(ctx, "a")
	assert.NoError(t, err)
}

func TestCollection_SkipsUnreadableRecords(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	raw := `[{"schemaVersion":1,"id":"good","name":"ok","updatedAt":"2024-05-01T12:00:00Z","messages":[]},"garbage"]`
	require.NoError(t, kv.Put(ctx, ConversationsKey, []byte(raw)))

	recent, err := New(kv).Conversations.Recent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(recent))
}

func TestCollection_MigratesLegacyConversation(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	raw := `[{"id":"1714564800000","name":"Analytics Chat","isBookmarked":true,"updatedAt":1714564800000,
		"messages":[{"id":"1","content":"Hello!","role":"assistant","timestamp":"2024-05-01T12:00:00.000Z"}]}]`
	require.NoError(t, kv.Put(ctx, ConversationsKey, []byte(raw)))

	got, err := New(kv).Conversations.Load(ctx, "1714564800000")
	require.NoError(t, err)
	assert.Equal(t, ntropiqtypes.SchemaVersion, got.SchemaVersion)
	assert.True(t, got.Bookmarked)
	assert.True(t, got.UpdatedAt.Equal(time.UnixMilli(1714564800000)))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, ntropiqtypes.RoleAssistant, got.Messages[0].Role)
	assert.True(t, got.Messages[0].CreatedAt.Equal(t0))
}

func TestCollection_MigratesLegacyNotebook(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	raw := `[{"id":"nb","name":"Untitled notebook","isBookmarked":false,"updatedAt":1714564800000,"cells":[
		{"id":"1","type":"natural_language","content":"top customers","timestamp":"2024-05-01T12:00:00.000Z","output":"# Insights"},
		{"id":"2","type":"code","content":"df.head()","timestamp":"2024-05-01T12:00:00.000Z","isExecuting":true}]}]`
	require.NoError(t, kv.Put(ctx, NotebooksKey, []byte(raw)))

	got, err := New(kv).Notebooks.Load(ctx, "nb")
	require.NoError(t, err)
	require.Len(t, got.Cells, 2)
	assert.Equal(t, ntropiqtypes.CellPrompt, got.Cells[0].Kind)
	require.NotNil(t, got.Cells[0].Output)
	assert.Equal(t, "# Insights", *got.Cells[0].Output)
	assert.Equal(t, ntropiqtypes.CellCode, got.Cells[1].Kind)
	assert.False(t, got.Cells[1].IsRunning)
	assert.Nil(t, got.Cells[1].Output)
}

func TestLegacyCellKind_Unknown(t *testing.T) {
	_, err := legacyCellKind("markdown")
	assert.Error(t, err)
}

func TestNextUpdate(t *testing.T) {
	assert.Equal(t, t0.Add(time.Second), NextUpdate(t0, t0.Add(time.Second)))
	assert.Equal(t, t0.Add(time.Millisecond), NextUpdate(t0, t0))
	assert.Equal(t, t0.Add(time.Millisecond), NextUpdate(t0, t0.Add(-time.Hour)))
	assert.True(t, NextUpdate(time.Time{}, t0).Equal(t0))
}

func TestStore_WorksOverEveryBackend(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(kv)
			nb := ntropiqtypes.NotebookSession{
				SchemaVersion: ntropiqtypes.SchemaVersion,
				ID:            "nb-" + name,
				Name:          "Untitled notebook",
				UpdatedAt:     t0,
				Cells:         []ntropiqtypes.Cell{{ID: "c1", Kind: ntropiqtypes.CellPrompt, CreatedAt: t0}},
			}
			require.NoError(t, s.Notebooks.Save(ctx, nb, time.Time{}))
			got, err := s.Notebooks.Load(ctx, nb.ID)
			require.NoError(t, err)
			assert.Equal(t, nb.Cells[0].ID, got.Cells[0].ID)
		})
	}
}

func ids[T Record](records []T) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.RecordID())
	}
	return out
}
