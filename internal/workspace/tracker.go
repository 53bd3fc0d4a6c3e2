package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nclamvn/prismy-production-sub002/internal/schedule"
)

// ErrAlreadyStarted is returned by Start on a running tracker.
var ErrAlreadyStarted = errors.New("workspace: tracker already started")

// Identity is what the surrounding application knows about the workspace
// owner: the authenticated user id and the negotiated locale.
type Identity struct {
	UserID string `json:"user_id"`
	Locale string `json:"locale"`
}

// Config tunes a Tracker.
type Config struct {
	// SyncInterval is how often the sync loop runs. Default: 30s.
	SyncInterval time.Duration

	// SuggestionDebounce is the quiet period before the suggestion sweep
	// runs after a mode change or new activity. Default: 2s.
	SuggestionDebounce time.Duration

	// SuggestionTTL is the lifetime of heuristic suggestions. Default: 24h.
	SuggestionTTL time.Duration

	// TranslationThreshold is the number of translation activities that
	// must be exceeded before the document translation suggestion fires.
	// Default: 3.
	TranslationThreshold int

	// Limits caps retained history.
	Limits Limits
}

// DefaultConfig returns the standard tracker configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval:         30 * time.Second,
		SuggestionDebounce:   2 * time.Second,
		SuggestionTTL:        24 * time.Hour,
		TranslationThreshold: 3,
		Limits:               DefaultLimits(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SyncInterval <= 0 {
		c.SyncInterval = def.SyncInterval
	}
	if c.SuggestionDebounce <= 0 {
		c.SuggestionDebounce = def.SuggestionDebounce
	}
	if c.SuggestionTTL <= 0 {
		c.SuggestionTTL = def.SuggestionTTL
	}
	if c.TranslationThreshold <= 0 {
		c.TranslationThreshold = def.TranslationThreshold
	}
	if c.Limits.Activities <= 0 {
		c.Limits.Activities = def.Limits.Activities
	}
	if c.Limits.CompletedOperations <= 0 {
		c.Limits.CompletedOperations = def.Limits.CompletedOperations
	}
	if c.Limits.Insights <= 0 {
		c.Limits.Insights = def.Limits.Insights
	}
	return c
}

// Recorder receives tracker events for metrics.
type Recorder interface {
	ActivityTracked(activityType string, success bool)
	OperationStarted(operationType string)
	OperationFinished(operationType, status string)
	SuggestionAdded(suggestionType string)
	SyncFinished(ok bool)
	WorkspacesLive(n int)
}

type nopRecorder struct{}

func (nopRecorder) ActivityTracked(string, bool)     {}
func (nopRecorder) OperationStarted(string)          {}
func (nopRecorder) OperationFinished(string, string) {}
func (nopRecorder) SuggestionAdded(string)           {}
func (nopRecorder) SyncFinished(bool)                {}
func (nopRecorder) WorkspacesLive(int)               {}

// ActivityInput describes an activity to track.
type ActivityInput struct {
	Type    ActivityType    `json:"type"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OperationInput describes an AI operation to start.
type OperationInput struct {
	Type  string          `json:"type"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Tracker owns one workspace state and its side effects.
type Tracker struct {
	identity Identity
	cfg      Config
	reducer  *Reducer
	syncer   Syncer
	recorder Recorder
	logger   zerolog.Logger

	mu      sync.Mutex // guards state and subs
	state   State
	subs    map[int]chan State
	nextSub int

	// trackMu serializes action creators that read state, derive a value
	// and dispatch it, so concurrent callers cannot lose pattern updates.
	trackMu sync.Mutex

	syncing atomic.Bool

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	syncLoop    *schedule.Repeating
	sweeper     atomic.Pointer[schedule.Debouncer]
}

// NewTracker creates a stopped tracker. A nil syncer always succeeds.
func NewTracker(id Identity, cfg Config, syncer Syncer, logger zerolog.Logger) *Tracker {
	cfg = cfg.withDefaults()
	if syncer == nil {
		syncer = SyncFunc(func(context.Context, SyncPayload) error { return nil })
	}
	reducer := NewReducer(cfg.Limits)
	return &Tracker{
		identity: id,
		cfg:      cfg,
		reducer:  reducer,
		syncer:   syncer,
		recorder: nopRecorder{},
		logger:   logger.With().Str("component", "workspace").Str("user_id", id.UserID).Logger(),
		state:    NewState(reducer.Now()),
		subs:     make(map[int]chan State),
	}
}

// SetRecorder installs a metrics recorder. Call before Start.
func (t *Tracker) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	t.recorder = r
}

// Identity returns the owner of this workspace.
func (t *Tracker) Identity() Identity {
	return t.identity
}

// Start arms the sync loop and the suggestion sweep. Cancelling ctx stops
// the sync loop; Stop releases everything.
func (t *Tracker) Start(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	loop := schedule.NewRepeating("workspace-sync", t.cfg.SyncInterval, t.syncTick, t.logger)
	if err := loop.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("workspace: starting sync loop: %w", err)
	}
	t.cancel = cancel
	t.syncLoop = loop

	sweeper := schedule.NewDebouncer(t.cfg.SuggestionDebounce, t.runSuggestionSweep)
	t.sweeper.Store(sweeper)
	sweeper.Trigger()

	t.logger.Info().
		Dur("sync_interval", t.cfg.SyncInterval).
		Dur("suggestion_debounce", t.cfg.SuggestionDebounce).
		Msg("workspace tracker started")
	return nil
}

// Stop halts the timers, cancels an in-flight sync and closes all
// subscriptions. It is safe to call more than once.
func (t *Tracker) Stop() {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	if t.cancel == nil {
		return
	}

	t.cancel()
	t.syncLoop.Stop()
	if sweeper := t.sweeper.Swap(nil); sweeper != nil {
		sweeper.Stop()
	}
	t.cancel = nil
	t.syncLoop = nil

	t.mu.Lock()
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	t.mu.Unlock()

	t.logger.Info().Msg("workspace tracker stopped")
}

// Restore replaces the state of a stopped tracker with s, typically the
// last synced snapshot. The connection status is reset to connected.
func (t *Tracker) Restore(s State) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyStarted
	}

	s = s.Clone()
	if s.CurrentMode == "" {
		s.CurrentMode = ModeWorkspace
	}
	s.Context.CurrentMode = s.CurrentMode
	s.ConnectionStatus = StatusConnected
	s.IsProcessing = len(s.ActiveOperations) > 0

	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (t *Tracker) Running() bool {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	return t.cancel != nil
}

// Dispatch applies an action to the state.
func (t *Tracker) Dispatch(a Action) {
	t.dispatch(a)
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() State {
	return t.current().Clone()
}

// Subscribe returns a channel receiving a snapshot after every dispatch.
// Sends never block: when the buffer is full the snapshot is dropped.
// The returned function cancels the subscription.
func (t *Tracker) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				close(c)
				delete(t.subs, id)
			}
		})
	}
}

// SetMode switches mode, credits the time spent in the previous mode and
// logs a navigation activity.
func (t *Tracker) SetMode(mode Mode) {
	t.trackMu.Lock()
	defer t.trackMu.Unlock()

	prev := t.current()
	next := t.dispatch(SetMode{Mode: mode})

	usage := prev.Patterns.clone().UsageTime
	if elapsed := next.ModeEnteredAt.Sub(prev.ModeEnteredAt); elapsed > 0 {
		usage[prev.CurrentMode] += elapsed
	}
	t.dispatch(UpdatePatterns{Patterns: UserPatterns{UsageTime: usage}})

	data, _ := json.Marshal(map[string]Mode{"from": prev.CurrentMode, "to": mode})
	t.trackActivityLocked(ActivityInput{Type: ActivityNavigation, Success: true, Data: data})
}

// TrackActivity logs an activity and bumps its feature usage counter.
func (t *Tracker) TrackActivity(in ActivityInput) Activity {
	t.trackMu.Lock()
	defer t.trackMu.Unlock()
	return t.trackActivityLocked(in)
}

func (t *Tracker) trackActivityLocked(in ActivityInput) Activity {
	id := t.reducer.NewID(prefixActivity)
	next := t.dispatch(AddActivity{
		ID:      id,
		Type:    in.Type,
		Success: in.Success,
		Data:    in.Data,
	})

	t.dispatch(PatternsAfterActivity(next, in.Type))
	t.recorder.ActivityTracked(string(in.Type), in.Success)

	for _, a := range next.Activities {
		if a.ID == id {
			return a
		}
	}
	return Activity{ID: id, Type: in.Type, Success: in.Success, Data: in.Data}
}

// PatternsAfterActivity derives the UpdatePatterns action that counts one
// more activity of type t on top of the patterns in s. Dispatching actions
// derived from the same stale snapshot loses all but one increment.
func PatternsAfterActivity(s State, t ActivityType) UpdatePatterns {
	usage := s.Patterns.clone().FeatureUsage
	usage[t]++
	return UpdatePatterns{Patterns: UserPatterns{FeatureUsage: usage}}
}

// StartAIOperation registers a processing operation, logs an ai_interaction
// activity and returns the id stored in the state.
func (t *Tracker) StartAIOperation(in OperationInput) string {
	t.trackMu.Lock()
	defer t.trackMu.Unlock()

	id := t.reducer.NewID(prefixOperation)
	t.dispatch(StartOperation{ID: id, Type: in.Type, Input: in.Input})
	t.recorder.OperationStarted(in.Type)

	data, _ := json.Marshal(map[string]string{
		"operation_id":   id,
		"operation_type": in.Type,
		"phase":          "start",
	})
	t.trackActivityLocked(ActivityInput{Type: ActivityAIInteraction, Success: true, Data: data})
	return id
}

// UpdateAIOperation merges upd into the active operation with the given id.
// Unknown ids are ignored.
func (t *Tracker) UpdateAIOperation(id string, upd OperationUpdate) {
	prev, ok := t.current().FindActiveOperation(id)
	next := t.dispatch(UpdateOperation{ID: id, Update: upd})
	if !ok {
		return
	}
	if done, finished := next.FindCompletedOperation(id); finished {
		t.recorder.OperationFinished(prev.Type, string(done.Status))
		t.logger.Debug().
			Str("operation_id", id).
			Str("status", string(done.Status)).
			Msg("ai operation finished")
	}
}

// CompleteAIOperation marks an operation completed with full progress.
func (t *Tracker) CompleteAIOperation(id string, output json.RawMessage) {
	t.UpdateAIOperation(id, OperationUpdate{
		Status:   StatusPtr(OperationCompleted),
		Progress: IntPtr(100),
		Output:   output,
	})
}

// FailAIOperation marks an operation failed.
func (t *Tracker) FailAIOperation(id, reason string) {
	t.UpdateAIOperation(id, OperationUpdate{
		Status: StatusPtr(OperationError),
		Error:  &reason,
	})
}

// AddSuggestion surfaces a suggestion and returns it with its id.
func (t *Tracker) AddSuggestion(s Suggestion) Suggestion {
	if s.ID == "" {
		s.ID = t.reducer.NewID(prefixSuggestion)
	}
	t.dispatch(AddSuggestion{Suggestion: s})
	t.recorder.SuggestionAdded(string(s.Type))
	return s
}

// RemoveSuggestion drops a suggestion.
func (t *Tracker) RemoveSuggestion(id string) {
	t.dispatch(RemoveSuggestion{ID: id})
}

// DismissSuggestion drops a suggestion the user declined.
func (t *Tracker) DismissSuggestion(id string) {
	t.RemoveSuggestion(id)
}

// ApplySuggestion logs that the user acted on a suggestion and drops it.
// It reports false when no such suggestion exists.
func (t *Tracker) ApplySuggestion(id string) bool {
	t.trackMu.Lock()
	defer t.trackMu.Unlock()

	var found *Suggestion
	for _, s := range t.current().Suggestions {
		if s.ID == id {
			s := s
			found = &s
			break
		}
	}
	if found == nil {
		return false
	}

	data, _ := json.Marshal(map[string]string{
		"suggestion_id": found.ID,
		"title":         found.Title,
		"type":          string(found.Type),
	})
	t.trackActivityLocked(ActivityInput{Type: ActivitySuggestionApplied, Success: true, Data: data})
	t.dispatch(RemoveSuggestion{ID: id})
	return true
}

// UpdateContext merges a partial workspace context.
func (t *Tracker) UpdateContext(p ContextPatch) {
	t.dispatch(UpdateContext{Patch: p})
}

// AddInsight records an insight and returns it with its id.
func (t *Tracker) AddInsight(in Insight) Insight {
	if in.ID == "" {
		in.ID = t.reducer.NewID(prefixInsight)
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = t.reducer.Now()
	}
	t.dispatch(AddInsight{Insight: in})
	return in
}

// GetWorkflowEfficiency returns the share of successful activities as a
// percentage, or 0 when nothing has been tracked.
func (t *Tracker) GetWorkflowEfficiency() float64 {
	return WorkflowEfficiency(t.current())
}

// WorkflowEfficiency computes successful / total activities × 100.
func WorkflowEfficiency(s State) float64 {
	if len(s.Activities) == 0 {
		return 0
	}
	ok := 0
	for _, a := range s.Activities {
		if a.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(s.Activities)) * 100
}

func (t *Tracker) current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// dispatch reduces under the state lock, fans the result out to
// subscribers and re-arms the suggestion sweep when the mode or the latest
// activity changed. The returned state must not be mutated.
func (t *Tracker) dispatch(a Action) State {
	t.mu.Lock()
	prev := t.state
	next := t.reducer.Reduce(prev, a)
	t.state = next
	if len(t.subs) > 0 {
		snap := next.Clone()
		for _, ch := range t.subs {
			select {
			case ch <- snap:
			default:
			}
		}
	}
	t.mu.Unlock()

	if prev.CurrentMode != next.CurrentMode || prev.Context.LastActivityID != next.Context.LastActivityID {
		if sweeper := t.sweeper.Load(); sweeper != nil {
			sweeper.Trigger()
		}
	}
	return next
}
