package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/nclamvn/prismy-production-sub002/internal/errors"
	"github.com/nclamvn/prismy-production-sub002/internal/store"
	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// HistoryStore is the persisted history read by GET /activities and
// GET /operations with source=store.
type HistoryStore interface {
	ListActivities(ctx context.Context, userID string, limit int) ([]store.ActivityRecord, error)
	ListOperations(ctx context.Context, userID string, limit int) ([]store.OperationRecord, error)
}

type handlers struct {
	manager *workspace.Manager
	history HistoryStore
	modes   map[workspace.Mode]bool
	logger  zerolog.Logger
}

// withWorkspace resolves the caller's tracker and attaches it to the
// request context.
func (h *handlers) withWorkspace(c *fiber.Ctx) error {
	id, ok := identityFrom(c)
	if !ok {
		return problemResponse(c, fiber.StatusUnauthorized, "missing_identity", "Unauthorized", "No workspace identity on request")
	}
	t, err := h.manager.Get(id)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", id.UserID).Msg("failed to open workspace")
		return problemResponse(c, fiber.StatusServiceUnavailable, "workspace_unavailable", "Service Unavailable", "Workspace is not available")
	}
	c.SetUserContext(workspace.WithTracker(c.UserContext(), t))
	return c.Next()
}

func tracker(c *fiber.Ctx) *workspace.Tracker {
	return workspace.MustFromContext(c.UserContext())
}

// GET /api/v1/workspace
func (h *handlers) getWorkspace(c *fiber.Ctx) error {
	t := tracker(c)
	snap := t.Snapshot()
	id := t.Identity()
	return c.JSON(WorkspaceResponse{
		UserID:             id.UserID,
		Locale:             id.Locale,
		State:              snap,
		WorkflowEfficiency: workspace.WorkflowEfficiency(snap),
	})
}

// PUT /api/v1/workspace/mode
func (h *handlers) setMode(c *fiber.Ctx) error {
	var req SetModeRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "Invalid request body")
	}
	if !h.modes[req.Mode] {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_mode", "Bad Request", "Unknown mode: "+string(req.Mode))
	}

	t := tracker(c)
	t.SetMode(req.Mode)
	snap := t.Snapshot()
	return c.JSON(ModeResponse{CurrentMode: snap.CurrentMode, PreviousMode: snap.PreviousMode})
}

// POST /api/v1/workspace/activities
func (h *handlers) trackActivity(c *fiber.Ctx) error {
	var req TrackActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "Invalid request body")
	}
	if strings.TrimSpace(string(req.Type)) == "" {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "type is required")
	}
	success := true
	if req.Success != nil {
		success = *req.Success
	}

	a := tracker(c).TrackActivity(workspace.ActivityInput{Type: req.Type, Success: success, Data: req.Data})
	return c.Status(fiber.StatusCreated).JSON(a)
}

func queryLimit(c *fiber.Ctx) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultActivityLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, maxActivityLimit), true
}

// GET /api/v1/workspace/activities
func (h *handlers) listActivities(c *fiber.Ctx) error {
	limit, ok := queryLimit(c)
	if !ok {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "limit must be a positive integer")
	}

	t := tracker(c)
	if c.Query("source") == "store" {
		if h.history == nil {
			return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", "Activity history is not persisted")
		}
		records, err := h.history.ListActivities(c.UserContext(), t.Identity().UserID, limit)
		if err != nil {
			return err
		}
		out := make([]workspace.Activity, 0, len(records))
		for _, r := range records {
			out = append(out, workspace.Activity{
				ID:        r.ID,
				Type:      workspace.ActivityType(r.Type),
				Mode:      workspace.Mode(r.Mode),
				Timestamp: r.CreatedAt,
				Success:   r.Success,
				Data:      json.RawMessage(r.Data),
			})
		}
		return c.JSON(ActivitiesResponse{Source: "store", Activities: out, Count: len(out)})
	}

	acts := t.Snapshot().Activities
	if len(acts) > limit {
		acts = acts[:limit]
	}
	return c.JSON(ActivitiesResponse{Source: "memory", Activities: acts, Count: len(acts)})
}

// GET /api/v1/workspace/operations
func (h *handlers) listOperations(c *fiber.Ctx) error {
	limit, ok := queryLimit(c)
	if !ok {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "limit must be a positive integer")
	}

	t := tracker(c)
	if c.Query("source") == "store" {
		if h.history == nil {
			return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", "Operation history is not persisted")
		}
		records, err := h.history.ListOperations(c.UserContext(), t.Identity().UserID, limit)
		if err != nil {
			return err
		}
		out := make([]workspace.AIOperation, 0, len(records))
		for _, r := range records {
			out = append(out, workspace.AIOperation{
				ID:          r.ID,
				Type:        r.Type,
				Status:      workspace.OperationStatus(r.Status),
				Progress:    r.Progress,
				Error:       r.Error,
				CreatedAt:   r.CreatedAt,
				CompletedAt: r.CompletedAt,
			})
		}
		return c.JSON(OperationsResponse{Source: "store", Operations: out, Count: len(out)})
	}

	snap := t.Snapshot()
	ops := make([]workspace.AIOperation, 0, len(snap.ActiveOperations)+len(snap.CompletedOperations))
	ops = append(ops, snap.ActiveOperations...)
	ops = append(ops, snap.CompletedOperations...)
	if len(ops) > limit {
		ops = ops[:limit]
	}
	return c.JSON(OperationsResponse{Source: "memory", Operations: ops, Count: len(ops)})
}

// POST /api/v1/workspace/operations
func (h *handlers) startOperation(c *fiber.Ctx) error {
	var req StartOperationRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "Invalid request body")
	}
	if strings.TrimSpace(req.Type) == "" {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "type is required")
	}

	t := tracker(c)
	id := t.StartAIOperation(workspace.OperationInput{Type: req.Type, Input: req.Input})
	op, _ := t.Snapshot().FindActiveOperation(id)
	return c.Status(fiber.StatusCreated).JSON(StartOperationResponse{ID: id, Operation: op})
}

// PATCH /api/v1/workspace/operations/:id
func (h *handlers) updateOperation(c *fiber.Ctx) error {
	opID := c.Params("id")
	var upd workspace.OperationUpdate
	if err := c.BodyParser(&upd); err != nil {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "Invalid request body")
	}
	if upd.Status != nil && !validStatus(*upd.Status) {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_status", "Bad Request", "Unknown status: "+string(*upd.Status))
	}
	if upd.Progress != nil && (*upd.Progress < 0 || *upd.Progress > 100) {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "progress must be between 0 and 100")
	}

	t := tracker(c)
	if _, ok := t.Snapshot().FindActiveOperation(opID); !ok {
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", "Active operation not found: "+opID)
	}
	t.UpdateAIOperation(opID, upd)

	snap := t.Snapshot()
	if op, ok := snap.FindActiveOperation(opID); ok {
		return c.JSON(op)
	}
	op, _ := snap.FindCompletedOperation(opID)
	return c.JSON(op)
}

// POST /api/v1/workspace/suggestions
func (h *handlers) addSuggestion(c *fiber.Ctx) error {
	var req AddSuggestionRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "Invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "title is required")
	}

	expires := req.Expires
	if expires == nil && req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "expires_in must be a positive duration")
		}
		at := time.Now().Add(d)
		expires = &at
	}
	if req.Type == "" {
		req.Type = workspace.SuggestionFeature
	}
	if req.Priority == "" {
		req.Priority = workspace.PriorityMedium
	}

	s := tracker(c).AddSuggestion(workspace.Suggestion{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Context:     req.Context,
		Expires:     expires,
	})
	return c.Status(fiber.StatusCreated).JSON(s)
}

// DELETE /api/v1/workspace/suggestions/:id
func (h *handlers) dismissSuggestion(c *fiber.Ctx) error {
	id := c.Params("id")
	t := tracker(c)
	if !hasSuggestion(t.Snapshot(), id) {
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", "Suggestion not found: "+id)
	}
	t.DismissSuggestion(id)
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /api/v1/workspace/suggestions/:id/apply
func (h *handlers) applySuggestion(c *fiber.Ctx) error {
	id := c.Params("id")
	if !tracker(c).ApplySuggestion(id) {
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", "Suggestion not found: "+id)
	}
	return c.JSON(fiber.Map{"status": "applied", "id": id})
}

// PATCH /api/v1/workspace/context
func (h *handlers) updateContext(c *fiber.Ctx) error {
	var patch workspace.ContextPatch
	if err := c.BodyParser(&patch); err != nil {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "Invalid request body")
	}
	t := tracker(c)
	t.UpdateContext(patch)
	return c.JSON(t.Snapshot().Context)
}

// POST /api/v1/workspace/insights
func (h *handlers) addInsight(c *fiber.Ctx) error {
	var req AddInsightRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "Invalid request body")
	}
	if strings.TrimSpace(req.Kind) == "" {
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", "kind is required")
	}
	in := tracker(c).AddInsight(workspace.Insight{
		Kind:     req.Kind,
		Title:    req.Title,
		Priority: req.Priority,
		Data:     req.Data,
	})
	return c.Status(fiber.StatusCreated).JSON(in)
}

// GET /api/v1/workspace/efficiency
func (h *handlers) getEfficiency(c *fiber.Ctx) error {
	snap := tracker(c).Snapshot()
	return c.JSON(EfficiencyResponse{
		WorkflowEfficiency: workspace.WorkflowEfficiency(snap),
		Activities:         len(snap.Activities),
	})
}

// POST /api/v1/workspace/sync
func (h *handlers) syncNow(c *fiber.Ctx) error {
	t := tracker(c)
	if err := t.SyncNow(c.UserContext()); err != nil {
		if errors.Is(err, workspace.ErrSyncInProgress) {
			return problemResponse(c, fiber.StatusConflict, "sync_in_progress", "Conflict", "A sync is already running")
		}
		h.logger.Warn().Err(err).Str("user_id", t.Identity().UserID).Msg("manual sync failed")
		status := perrors.HTTPStatus(err)
		if status == fiber.StatusInternalServerError {
			status = fiber.StatusBadGateway
		}
		return problemResponse(c, status, "sync_failed", "Sync Failed", err.Error())
	}
	snap := t.Snapshot()
	return c.JSON(SyncResponse{ConnectionStatus: snap.ConnectionStatus, LastSync: snap.LastSync})
}

func validStatus(s workspace.OperationStatus) bool {
	switch s {
	case workspace.OperationPending, workspace.OperationProcessing,
		workspace.OperationCompleted, workspace.OperationError:
		return true
	}
	return false
}

func hasSuggestion(s workspace.State, id string) bool {
	for _, sg := range s.Suggestions {
		if sg.ID == id {
			return true
		}
	}
	return false
}
