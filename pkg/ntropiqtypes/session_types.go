// Package ntropiqtypes defines session, notebook and artifact types for ntropiq.
// This file contains the persisted data model shared by the conversation and notebook
// sessions and the session store.
package ntropiqtypes

import "time"

// SchemaVersion is written into every persisted session record.
// Records without a version predate it and are migrated on read.
const SchemaVersion = 1

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single entry in a conversation log.
// Messages are immutable once appended.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// ArtifactKind classifies content lifted out of a reply.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactCode  ArtifactKind = "code"
	ArtifactImage ArtifactKind = "image"
	ArtifactTable ArtifactKind = "table"
)

// Artifact is a fragment of an assistant reply shown in the side panel.
// Artifacts are derived data and are never persisted.
type Artifact struct {
	ID      string       `json:"id"`
	Kind    ArtifactKind `json:"kind"`
	Label   string       `json:"label"`
	Content string       `json:"content"`
}

// CellKind classifies a notebook cell.
type CellKind string

// Cell kinds.
const (
	CellPrompt CellKind = "prompt"
	CellCode   CellKind = "code"
	CellOutput CellKind = "output"
)

// Valid reports whether k is a known cell kind.
func (k CellKind) Valid() bool {
	switch k {
	case CellPrompt, CellCode, CellOutput:
		return true
	}
	return false
}

// Cell is one unit of notebook content. Output is nil until the cell has run.
type Cell struct {
	ID        string    `json:"id" yaml:"id"`
	Kind      CellKind  `json:"kind" yaml:"kind"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	IsRunning bool      `json:"isRunning" yaml:"is_running"`
	Output    *string   `json:"output,omitempty" yaml:"output,omitempty"`
}

// ConversationSession is the persisted record of a chat.
type ConversationSession struct {
	SchemaVersion int       `json:"schemaVersion" yaml:"schema_version"`
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Bookmarked    bool      `json:"bookmarked" yaml:"bookmarked"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"updated_at"`
	Messages      []Message `json:"messages" yaml:"messages"`
}

// RecordID returns the session id.
func (s ConversationSession) RecordID() string { return s.ID }

// Updated returns the last persisted mutation time.
func (s ConversationSession) Updated() time.Time { return s.UpdatedAt }

// IsBookmarked reports the bookmark flag.
func (s ConversationSession) IsBookmarked() bool { return s.Bookmarked }

// NotebookSession is the persisted record of a notebook.
type NotebookSession struct {
	SchemaVersion int       `json:"schemaVersion" yaml:"schema_version"`
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Bookmarked    bool      `json:"bookmarked" yaml:"bookmarked"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"updated_at"`
	Cells         []Cell    `json:"cells" yaml:"cells"`
	// ActiveCellID is the command-mode cursor as of the last save.
	ActiveCellID string `json:"activeCellId,omitempty" yaml:"active_cell_id,omitempty"`
}

// RecordID returns the session id.
func (s NotebookSession) RecordID() string { return s.ID }

// Updated returns the last persisted mutation time.
func (s NotebookSession) Updated() time.Time { return s.UpdatedAt }

// IsBookmarked reports the bookmark flag.
func (s NotebookSession) IsBookmarked() bool { return s.Bookmarked }
