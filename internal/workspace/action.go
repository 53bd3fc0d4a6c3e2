package workspace

import (
	"encoding/json"
	"time"
)

// Action is a state transition request. The set of actions is closed: only
// the types declared in this file implement it.
type Action interface {
	isAction()
}

// SetMode switches the current workspace mode.
type SetMode struct {
	Mode Mode
}

// AddActivity appends an activity to the log. ID and Timestamp are assigned
// by the reducer when empty; Mode defaults to the current mode.
type AddActivity struct {
	ID        string
	Type      ActivityType
	Mode      Mode
	Success   bool
	Data      json.RawMessage
	Timestamp time.Time
}

// StartOperation registers a new AI operation in the processing state. The
// reducer assigns an id when ID is empty.
type StartOperation struct {
	ID    string
	Type  string
	Input json.RawMessage
}

// OperationUpdate is a partial update merged into an active operation.
// Nil fields are left untouched.
type OperationUpdate struct {
	Status   *OperationStatus `json:"status,omitempty"`
	Progress *int             `json:"progress,omitempty"`
	Output   json.RawMessage  `json:"output,omitempty"`
	Error    *string          `json:"error,omitempty"`
}

// UpdateOperation merges Update into the active operation with the given id.
type UpdateOperation struct {
	ID     string
	Update OperationUpdate
}

// AddSuggestion appends a suggestion. The reducer assigns an id when empty.
type AddSuggestion struct {
	Suggestion Suggestion
}

// RemoveSuggestion drops every suggestion with the given id.
type RemoveSuggestion struct {
	ID string
}

// ContextPatch is a partial WorkspaceContext. Nil fields are left untouched.
type ContextPatch struct {
	ActiveDocuments []string  `json:"active_documents,omitempty"`
	LastActivityID  *string   `json:"last_activity_id,omitempty"`
	Cursor          *Cursor   `json:"cursor,omitempty"`
	Viewport        *Viewport `json:"viewport,omitempty"`
}

// UpdateContext shallow-merges Patch into the workspace context.
type UpdateContext struct {
	Patch ContextPatch
}

// UpdatePatterns shallow-merges the non-nil maps of Patterns into the
// current patterns, replacing each map wholesale.
type UpdatePatterns struct {
	Patterns UserPatterns
}

// AddInsight records a derived insight.
type AddInsight struct {
	Insight Insight
}

// SetConnectionStatus replaces the connection status.
type SetConnectionStatus struct {
	Status ConnectionStatus
}

// SyncComplete records a successful backend sync.
type SyncComplete struct {
	At time.Time
}

func (SetMode) isAction()             {}
func (AddActivity) isAction()         {}
func (StartOperation) isAction()      {}
func (UpdateOperation) isAction()     {}
func (AddSuggestion) isAction()       {}
func (RemoveSuggestion) isAction()    {}
func (UpdateContext) isAction()       {}
func (UpdatePatterns) isAction()      {}
func (AddInsight) isAction()          {}
func (SetConnectionStatus) isAction() {}
func (SyncComplete) isAction()        {}

// StatusPtr returns a pointer to s, for building OperationUpdate literals.
func StatusPtr(s OperationStatus) *OperationStatus { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
