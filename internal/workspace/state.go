// Package workspace implements the workspace activity and operation tracker:
// a reducer-driven state container that records what a user does in the
// workspace, follows AI operations through their lifecycle, surfaces
// expirable suggestions and keeps itself in sync with a backend.
//
// All state transitions go through Reducer.Reduce. A Tracker owns one State,
// serializes dispatches and runs the timer-driven side effects (sync loop and
// suggestion sweep) between Start and Stop.
package workspace

import (
	"encoding/json"
	"time"
)

// Mode is a top-level workspace view the user is currently in.
type Mode string

const (
	ModeWorkspace    Mode = "workspace"
	ModeTranslation  Mode = "translation"
	ModeDocuments    Mode = "documents"
	ModeIntelligence Mode = "intelligence"
	ModeAnalytics    Mode = "analytics"
	ModeSettings     Mode = "settings"
)

// KnownModes lists the modes the workspace ships with.
var KnownModes = []Mode{
	ModeWorkspace,
	ModeTranslation,
	ModeDocuments,
	ModeIntelligence,
	ModeAnalytics,
	ModeSettings,
}

// ActivityType classifies an activity log entry. Callers may use their own
// values; the constants below are the ones the tracker itself emits or
// inspects.
type ActivityType string

const (
	ActivityNavigation        ActivityType = "navigation"
	ActivityTranslation       ActivityType = "translation"
	ActivityDocumentUpload    ActivityType = "document_upload"
	ActivityDocumentProcess   ActivityType = "document_process"
	ActivityAIInteraction     ActivityType = "ai_interaction"
	ActivitySearch            ActivityType = "search"
	ActivityExport            ActivityType = "export"
	ActivitySettingsChange    ActivityType = "settings_change"
	ActivitySuggestionApplied ActivityType = "suggestion_applied"
)

// OperationStatus is the lifecycle state of an AI operation.
type OperationStatus string

const (
	OperationPending    OperationStatus = "pending"
	OperationProcessing OperationStatus = "processing"
	OperationCompleted  OperationStatus = "completed"
	OperationError      OperationStatus = "error"
)

// IsTerminal reports whether an operation in this status is finished.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationCompleted || s == OperationError
}

// ConnectionStatus is the state of the backend sync connection.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// SuggestionType classifies a suggestion.
type SuggestionType string

const (
	SuggestionFeature   SuggestionType = "feature"
	SuggestionWorkflow  SuggestionType = "workflow"
	SuggestionShortcut  SuggestionType = "shortcut"
	SuggestionAutomated SuggestionType = "automation"
)

// Priority orders suggestions and insights.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Viewport is the visible region of the workspace UI.
type Viewport struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Zoom   float64 `json:"zoom"`
}

// Cursor is the last known pointer position.
type Cursor struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WorkspaceContext is the UI context the user is working in.
type WorkspaceContext struct {
	CurrentMode     Mode      `json:"current_mode"`
	ActiveDocuments []string  `json:"active_documents"`
	LastActivityID  string    `json:"last_activity_id,omitempty"`
	Cursor          *Cursor   `json:"cursor,omitempty"`
	Viewport        *Viewport `json:"viewport,omitempty"`
}

// Activity is an immutable audit-log record.
type Activity struct {
	ID        string          `json:"id"`
	Type      ActivityType    `json:"type"`
	Mode      Mode            `json:"mode"`
	Timestamp time.Time       `json:"timestamp"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// AIOperation tracks one unit of AI-assisted work.
type AIOperation struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      OperationStatus `json:"status"`
	Progress    int             `json:"progress"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Suggestion is an ephemeral recommendation surfaced to the user.
type Suggestion struct {
	ID          string          `json:"id"`
	Type        SuggestionType  `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Context     json.RawMessage `json:"context,omitempty"`
	Expires     *time.Time      `json:"expires,omitempty"`
}

// Expired reports whether the suggestion expired before now.
func (s Suggestion) Expired(now time.Time) bool {
	return s.Expires != nil && s.Expires.Before(now)
}

// UserPatterns aggregates usage counters.
type UserPatterns struct {
	UsageTime    map[Mode]time.Duration `json:"usage_time"`
	FeatureUsage map[ActivityType]int   `json:"feature_usage"`
}

// Insight is a free-form derived observation.
type Insight struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Priority  Priority        `json:"priority,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// State is the complete tracker state.
type State struct {
	CurrentMode         Mode             `json:"current_mode"`
	PreviousMode        Mode             `json:"previous_mode,omitempty"`
	ModeEnteredAt       time.Time        `json:"mode_entered_at"`
	Context             WorkspaceContext `json:"context"`
	Activities          []Activity       `json:"activities"`
	ActiveOperations    []AIOperation    `json:"active_operations"`
	CompletedOperations []AIOperation    `json:"completed_operations"`
	Suggestions         []Suggestion     `json:"suggestions"`
	Insights            []Insight        `json:"insights"`
	Patterns            UserPatterns     `json:"patterns"`
	IsProcessing        bool             `json:"is_processing"`
	ConnectionStatus    ConnectionStatus `json:"connection_status"`
	LastSync            *time.Time       `json:"last_sync,omitempty"`
}

// Limits bounds the history the reducer retains.
type Limits struct {
	Activities          int
	CompletedOperations int
	Insights            int
}

// DefaultLimits returns the standard history caps.
func DefaultLimits() Limits {
	return Limits{
		Activities:          100,
		CompletedOperations: 50,
		Insights:            50,
	}
}

// NewState returns the initial state for a fresh workspace.
func NewState(now time.Time) State {
	return State{
		CurrentMode:   ModeWorkspace,
		ModeEnteredAt: now,
		Context: WorkspaceContext{
			CurrentMode:     ModeWorkspace,
			ActiveDocuments: []string{},
		},
		Activities:          []Activity{},
		ActiveOperations:    []AIOperation{},
		CompletedOperations: []AIOperation{},
		Suggestions:         []Suggestion{},
		Insights:            []Insight{},
		Patterns: UserPatterns{
			UsageTime:    map[Mode]time.Duration{},
			FeatureUsage: map[ActivityType]int{},
		},
		ConnectionStatus: StatusConnected,
	}
}

// Clone returns a deep copy of the state. Raw JSON payloads are shared
// because nothing in the package mutates them after creation.
func (s State) Clone() State {
	out := s
	out.Context = s.Context.clone()
	out.Activities = append([]Activity{}, s.Activities...)
	out.ActiveOperations = cloneOperations(s.ActiveOperations)
	out.CompletedOperations = cloneOperations(s.CompletedOperations)
	out.Suggestions = append([]Suggestion{}, s.Suggestions...)
	out.Insights = append([]Insight{}, s.Insights...)
	out.Patterns = s.Patterns.clone()
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	return out
}

// FindActiveOperation returns the active operation with the given id.
func (s State) FindActiveOperation(id string) (AIOperation, bool) {
	for _, op := range s.ActiveOperations {
		if op.ID == id {
			return op, true
		}
	}
	return AIOperation{}, false
}

// FindCompletedOperation returns the completed operation with the given id.
func (s State) FindCompletedOperation(id string) (AIOperation, bool) {
	for _, op := range s.CompletedOperations {
		if op.ID == id {
			return op, true
		}
	}
	return AIOperation{}, false
}

// CountActivities counts logged activities of the given type.
func (s State) CountActivities(t ActivityType) int {
	n := 0
	for _, a := range s.Activities {
		if a.Type == t {
			n++
		}
	}
	return n
}

func (c WorkspaceContext) clone() WorkspaceContext {
	out := c
	out.ActiveDocuments = append([]string{}, c.ActiveDocuments...)
	if c.Cursor != nil {
		cur := *c.Cursor
		out.Cursor = &cur
	}
	if c.Viewport != nil {
		vp := *c.Viewport
		out.Viewport = &vp
	}
	return out
}

func (p UserPatterns) clone() UserPatterns {
	out := UserPatterns{
		UsageTime:    make(map[Mode]time.Duration, len(p.UsageTime)),
		FeatureUsage: make(map[ActivityType]int, len(p.FeatureUsage)),
	}
	for k, v := range p.UsageTime {
		out.UsageTime[k] = v
	}
	for k, v := range p.FeatureUsage {
		out.FeatureUsage[k] = v
	}
	return out
}

func cloneOperations(ops []AIOperation) []AIOperation {
	out := make([]AIOperation, len(ops))
	for i, op := range ops {
		out[i] = op.clone()
	}
	return out
}

func (op AIOperation) clone() AIOperation {
	out := op
	if op.StartedAt != nil {
		t := *op.StartedAt
		out.StartedAt = &t
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
