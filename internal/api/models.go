// Package api exposes workspace trackers over HTTP.
package api

import (
	"encoding/json"
	"time"

	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// --- Request DTOs ---

// SetModeRequest is the payload for PUT /api/v1/workspace/mode.
type SetModeRequest struct {
	Mode workspace.Mode `json:"mode"`
}

// TrackActivityRequest is the payload for POST /api/v1/workspace/activities.
// Success defaults to true.
type TrackActivityRequest struct {
	Type    workspace.ActivityType `json:"type"`
	Success *bool                  `json:"success,omitempty"`
	Data    json.RawMessage        `json:"data,omitempty"`
}

// StartOperationRequest is the payload for POST /api/v1/workspace/operations.
type StartOperationRequest struct {
	Type  string          `json:"type"`
	Input json.RawMessage `json:"input,omitempty"`
}

// AddSuggestionRequest is the payload for POST /api/v1/workspace/suggestions.
// ExpiresIn is a Go duration string such as "30m"; Expires wins when both
// are set.
type AddSuggestionRequest struct {
	Type        workspace.SuggestionType `json:"type"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Priority    workspace.Priority       `json:"priority"`
	Context     json.RawMessage          `json:"context,omitempty"`
	Expires     *time.Time               `json:"expires,omitempty"`
	ExpiresIn   string                   `json:"expires_in,omitempty"`
}

// AddInsightRequest is the payload for POST /api/v1/workspace/insights.
type AddInsightRequest struct {
	Kind     string             `json:"kind"`
	Title    string             `json:"title"`
	Priority workspace.Priority `json:"priority,omitempty"`
	Data     json.RawMessage    `json:"data,omitempty"`
}

// --- Response DTOs ---

// WorkspaceResponse is returned by GET /api/v1/workspace.
type WorkspaceResponse struct {
	UserID             string          `json:"user_id"`
	Locale             string          `json:"locale"`
	State              workspace.State `json:"state"`
	WorkflowEfficiency float64         `json:"workflow_efficiency"`
}

// ModeResponse is returned by PUT /api/v1/workspace/mode.
type ModeResponse struct {
	CurrentMode  workspace.Mode `json:"current_mode"`
	PreviousMode workspace.Mode `json:"previous_mode,omitempty"`
}

// StartOperationResponse is returned by POST /api/v1/workspace/operations.
type StartOperationResponse struct {
	ID        string                `json:"id"`
	Operation workspace.AIOperation `json:"operation"`
}

// ActivitiesResponse is returned by GET /api/v1/workspace/activities.
type ActivitiesResponse struct {
	Source     string               `json:"source"`
	Activities []workspace.Activity `json:"activities"`
	Count      int                  `json:"count"`
}

// OperationsResponse is returned by GET /api/v1/workspace/operations.
// In memory, active operations come before completed ones.
type OperationsResponse struct {
	Source     string                  `json:"source"`
	Operations []workspace.AIOperation `json:"operations"`
	Count      int                     `json:"count"`
}

// EfficiencyResponse is returned by GET /api/v1/workspace/efficiency.
type EfficiencyResponse struct {
	WorkflowEfficiency float64 `json:"workflow_efficiency"`
	Activities         int     `json:"activities"`
}

// SyncResponse is returned by POST /api/v1/workspace/sync.
type SyncResponse struct {
	ConnectionStatus workspace.ConnectionStatus `json:"connection_status"`
	LastSync         *time.Time                 `json:"last_sync,omitempty"`
}
