package store

import (
	"encoding/json"
	"fmt"
	"time"

	"ntropiq/pkg/ntropiqtypes"
)

// Records written before schema versioning carry the browser field names:
// isBookmarked, millisecond updatedAt, message/cell timestamp, cell type
// (natural_language for prompts) and isExecuting.

type versionProbe struct {
	SchemaVersion int `json:"schemaVersion"`
}

type legacyMessage struct {
	ID        string            `json:"id"`
	Role      ntropiqtypes.Role `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
}

type legacyConversation struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	IsBookmarked bool            `json:"isBookmarked"`
	UpdatedAt    int64           `json:"updatedAt"`
	Messages     []legacyMessage `json:"messages"`
}

type legacyCell struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsExecuting bool      `json:"isExecuting"`
	Output      *string   `json:"output"`
}

type legacyNotebook struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	IsBookmarked bool         `json:"isBookmarked"`
	UpdatedAt    int64        `json:"updatedAt"`
	Cells        []legacyCell `json:"cells"`
}

func probeVersion(raw json.RawMessage) (int, error) {
	var p versionProbe
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, err
	}
	return p.SchemaVersion, nil
}

func decodeConversation(raw json.RawMessage) (ntropiqtypes.ConversationSession, error) {
	version, err := probeVersion(raw)
	if err != nil {
		return ntropiqtypes.ConversationSession{}, err
	}
	if version >= 1 {
		var s ntropiqtypes.ConversationSession
		err := json.Unmarshal(raw, &s)
		return s, err
	}

	var legacy legacyConversation
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return ntropiqtypes.ConversationSession{}, fmt.Errorf("legacy conversation: %w", err)
	}
	s := ntropiqtypes.ConversationSession{
		SchemaVersion: ntropiqtypes.SchemaVersion,
		ID:            legacy.ID,
		Name:          legacy.Name,
		Bookmarked:    legacy.IsBookmarked,
		UpdatedAt:     time.UnixMilli(legacy.UpdatedAt).UTC(),
		Messages:      make([]ntropiqtypes.Message, 0, len(legacy.Messages)),
	}
	for _, m := range legacy.Messages {
		s.Messages = append(s.Messages, ntropiqtypes.Message{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.Timestamp,
		})
	}
	return s, nil
}

func decodeNotebook(raw json.RawMessage) (ntropiqtypes.NotebookSession, error) {
	version, err := probeVersion(raw)
	if err != nil {
		return ntropiqtypes.NotebookSession{}, err
	}
	if version >= 1 {
		var s ntropiqtypes.NotebookSession
		err := json.Unmarshal(raw, &s)
		return s, err
	}

	var legacy legacyNotebook
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return ntropiqtypes.NotebookSession{}, fmt.Errorf("legacy notebook: %w", err)
	}
	s := ntropiqtypes.NotebookSession{
		SchemaVersion: ntropiqtypes.SchemaVersion,
		ID:            legacy.ID,
		Name:          legacy.Name,
		Bookmarked:    legacy.IsBookmarked,
		UpdatedAt:     time.UnixMilli(legacy.UpdatedAt).UTC(),
		Cells:         make([]ntropiqtypes.Cell, 0, len(legacy.Cells)),
	}
	for _, c := range legacy.Cells {
		kind, err := legacyCellKind(c.Type)
		if err != nil {
			return ntropiqtypes.NotebookSession{}, err
		}
		s.Cells = append(s.Cells, ntropiqtypes.Cell{
			ID:        c.ID,
			Kind:      kind,
			Content:   c.Content,
			CreatedAt: c.Timestamp,
			// A cell persisted mid-run will never complete.
			IsRunning: false,
			Output:    c.Output,
		})
	}
	return s, nil
}

func legacyCellKind(t string) (ntropiqtypes.CellKind, error) {
	switch t {
	case "natural_language", "prompt":
		return ntropiqtypes.CellPrompt, nil
	case "code":
		return ntropiqtypes.CellCode, nil
	case "output":
		return ntropiqtypes.CellOutput, nil
	}
	return "", fmt.Errorf("unknown legacy cell type %q", t)
}
