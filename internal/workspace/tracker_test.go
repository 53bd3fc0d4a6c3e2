package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestTracker(t *testing.T, cfg Config, syncer Syncer) *Tracker {
	t.Helper()
	tr := NewTracker(Identity{UserID: "user-1", Locale: "en"}, cfg, syncer, zerolog.Nop())
	t.Cleanup(tr.Stop)
	return tr
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.SyncInterval = time.Hour
	cfg.SuggestionDebounce = 20 * time.Millisecond
	return cfg
}

func TestTracker_TrackActivity(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)

	a := tr.TrackActivity(ActivityInput{Type: ActivitySearch, Success: true, Data: json.RawMessage(`{"q":"x"}`)})
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, ModeWorkspace, a.Mode)

	s := tr.Snapshot()
	require.Len(t, s.Activities, 1)
	assert.Equal(t, a.ID, s.Activities[0].ID)
	assert.Equal(t, a.ID, s.Context.LastActivityID)
	assert.Equal(t, 1, s.Patterns.FeatureUsage[ActivitySearch])
}

func TestTracker_ConcurrentTrackActivityKeepsEveryIncrement(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackActivity(ActivityInput{Type: ActivitySearch, Success: true})
		}()
	}
	wg.Wait()

	s := tr.Snapshot()
	assert.Len(t, s.Activities, n)
	assert.Equal(t, n, s.Patterns.FeatureUsage[ActivitySearch])
}

func TestTracker_ActivityCap(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	var first Activity
	for i := 0; i < 101; i++ {
		a := tr.TrackActivity(ActivityInput{Type: ActivityExport, Success: true})
		if i == 0 {
			first = a
		}
	}
	s := tr.Snapshot()
	require.Len(t, s.Activities, 100)
	for _, a := range s.Activities {
		assert.NotEqual(t, first.ID, a.ID)
	}
	assert.Equal(t, 101, s.Patterns.FeatureUsage[ActivityExport])
}

func TestTracker_SetModeLogsNavigationAndUsage(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)

	time.Sleep(5 * time.Millisecond)
	tr.SetMode(ModeDocuments)

	s := tr.Snapshot()
	assert.Equal(t, ModeDocuments, s.CurrentMode)
	assert.Equal(t, ModeWorkspace, s.PreviousMode)
	require.Len(t, s.Activities, 1)
	nav := s.Activities[0]
	assert.Equal(t, ActivityNavigation, nav.Type)
	assert.Equal(t, ModeDocuments, nav.Mode)
	assert.JSONEq(t, `{"from":"workspace","to":"documents"}`, string(nav.Data))
	assert.Greater(t, s.Patterns.UsageTime[ModeWorkspace], time.Duration(0))
	assert.Equal(t, 1, s.Patterns.FeatureUsage[ActivityNavigation])
}

func TestTracker_StartAIOperationReturnsStoredID(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)

	id := tr.StartAIOperation(OperationInput{Type: "translate", Input: json.RawMessage(`{"lang":"fr"}`)})
	s := tr.Snapshot()

	op, ok := s.FindActiveOperation(id)
	require.True(t, ok, "returned id must address the stored operation")
	assert.Equal(t, "translate", op.Type)
	assert.True(t, s.IsProcessing)
	require.Len(t, s.Activities, 1)
	assert.Equal(t, ActivityAIInteraction, s.Activities[0].Type)

	tr.UpdateAIOperation(id, OperationUpdate{Progress: IntPtr(60)})
	op, _ = tr.Snapshot().FindActiveOperation(id)
	assert.Equal(t, 60, op.Progress)

	tr.CompleteAIOperation(id, json.RawMessage(`{"ok":true}`))
	s = tr.Snapshot()
	assert.Empty(t, s.ActiveOperations)
	assert.False(t, s.IsProcessing)
	done, ok := s.FindCompletedOperation(id)
	require.True(t, ok)
	assert.Equal(t, OperationCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.JSONEq(t, `{"ok":true}`, string(done.Output))
}

func TestTracker_FailAIOperation(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	id := tr.StartAIOperation(OperationInput{Type: "ocr"})

	tr.FailAIOperation(id, "timeout")
	done, ok := tr.Snapshot().FindCompletedOperation(id)
	require.True(t, ok)
	assert.Equal(t, OperationError, done.Status)
	assert.Equal(t, "timeout", done.Error)

	// unknown id is ignored
	before := tr.Snapshot()
	tr.UpdateAIOperation("op_missing", OperationUpdate{Progress: IntPtr(1)})
	assert.Equal(t, before.CompletedOperations, tr.Snapshot().CompletedOperations)
}

func TestTracker_Efficiency(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	assert.Equal(t, 0.0, tr.GetWorkflowEfficiency())

	tr.TrackActivity(ActivityInput{Type: ActivitySearch, Success: true})
	assert.Equal(t, 100.0, tr.GetWorkflowEfficiency())

	tr.TrackActivity(ActivityInput{Type: ActivitySearch, Success: false})
	assert.Equal(t, 50.0, tr.GetWorkflowEfficiency())
}

func TestTracker_SweepRemovesExpiredSuggestions(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)

	past := time.Now().Add(-time.Millisecond)
	future := time.Now().Add(time.Hour)
	expired := tr.AddSuggestion(Suggestion{Type: SuggestionShortcut, Title: "old", Expires: &past})
	kept := tr.AddSuggestion(Suggestion{Type: SuggestionShortcut, Title: "new", Expires: &future})
	forever := tr.AddSuggestion(Suggestion{Type: SuggestionWorkflow, Title: "forever"})

	assert.Equal(t, 1, tr.SweepSuggestions(time.Now()))

	s := tr.Snapshot()
	ids := make([]string, 0, len(s.Suggestions))
	for _, sug := range s.Suggestions {
		ids = append(ids, sug.ID)
	}
	assert.NotContains(t, ids, expired.ID)
	assert.ElementsMatch(t, []string{kept.ID, forever.ID}, ids)
}

func TestTracker_TranslationSuggestionAfterDebounce(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	require.NoError(t, tr.Start(context.Background()))

	tr.SetMode(ModeTranslation)
	for i := 0; i < 4; i++ {
		tr.TrackActivity(ActivityInput{Type: ActivityTranslation, Success: true})
	}

	require.Eventually(t, func() bool {
		return len(tr.Snapshot().Suggestions) > 0
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	s := tr.Snapshot()
	require.Len(t, s.Suggestions, 1)
	sug := s.Suggestions[0]
	assert.Equal(t, "Try Document Translation", sug.Title)
	assert.Equal(t, SuggestionFeature, sug.Type)
	assert.Equal(t, PriorityMedium, sug.Priority)
	require.NotNil(t, sug.Expires)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *sug.Expires, time.Minute)
}

func TestTracker_NoTranslationSuggestionAtThreshold(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	require.NoError(t, tr.Start(context.Background()))

	tr.SetMode(ModeTranslation)
	for i := 0; i < 3; i++ {
		tr.TrackActivity(ActivityInput{Type: ActivityTranslation, Success: true})
	}
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, tr.Snapshot().Suggestions)
}

func TestTracker_ApplyAndDismissSuggestion(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	a := tr.AddSuggestion(Suggestion{Type: SuggestionAutomated, Title: "Batch export"})
	b := tr.AddSuggestion(Suggestion{Type: SuggestionShortcut, Title: "Ctrl+K"})

	assert.True(t, tr.ApplySuggestion(a.ID))
	assert.False(t, tr.ApplySuggestion(a.ID))
	tr.DismissSuggestion(b.ID)

	s := tr.Snapshot()
	assert.Empty(t, s.Suggestions)
	require.Len(t, s.Activities, 1)
	assert.Equal(t, ActivitySuggestionApplied, s.Activities[0].Type)
	assert.Equal(t, 1, s.Patterns.FeatureUsage[ActivitySuggestionApplied])
}

func TestTracker_UpdateContextAndInsight(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	tr.UpdateContext(ContextPatch{ActiveDocuments: []string{"doc-9"}})
	ins := tr.AddInsight(Insight{Kind: "usage", Title: "Busy morning", Priority: PriorityLow})

	s := tr.Snapshot()
	assert.Equal(t, []string{"doc-9"}, s.Context.ActiveDocuments)
	require.Len(t, s.Insights, 1)
	assert.Equal(t, ins.ID, s.Insights[0].ID)
	assert.False(t, ins.CreatedAt.IsZero())
}

func TestTracker_SnapshotIsolated(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	tr.TrackActivity(ActivityInput{Type: ActivitySearch, Success: true})

	snap := tr.Snapshot()
	snap.Activities[0].Success = false
	snap.Patterns.FeatureUsage[ActivitySearch] = 42

	s := tr.Snapshot()
	assert.True(t, s.Activities[0].Success)
	assert.Equal(t, 1, s.Patterns.FeatureUsage[ActivitySearch])
}

func TestTracker_Subscribe(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	ch, cancel := tr.Subscribe(8)

	tr.SetMode(ModeAnalytics)
	select {
	case s := <-ch:
		assert.Equal(t, ModeAnalytics, s.CurrentMode)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	cancel()
	for range ch {
	}
}

func TestTracker_SubscribeDropsWhenFull(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	ch, cancel := tr.Subscribe(1)
	defer cancel()

	for i := 0; i < 10; i++ {
		tr.TrackActivity(ActivityInput{Type: ActivitySearch, Success: true})
	}
	assert.Len(t, ch, 1)
}

func TestTracker_StopClosesSubscriptions(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	require.NoError(t, tr.Start(context.Background()))
	ch, _ := tr.Subscribe(1)

	tr.Stop()
	_, open := <-ch
	assert.False(t, open)
	assert.False(t, tr.Running())
}

func TestTracker_StartTwice(t *testing.T) {
	tr := newTestTracker(t, quietConfig(), nil)
	require.NoError(t, tr.Start(context.Background()))
	assert.ErrorIs(t, tr.Start(context.Background()), ErrAlreadyStarted)
}

func TestTracker_SyncNowSuccess(t *testing.T) {
	var got SyncPayload
	var during ConnectionStatus
	var tr *Tracker
	tr = newTestTracker(t, quietConfig(), SyncFunc(func(ctx context.Context, p SyncPayload) error {
		got = p
		during = tr.Snapshot().ConnectionStatus
		return nil
	}))
	tr.SetMode(ModeSettings)

	require.NoError(t, tr.SyncNow(context.Background()))

	s := tr.Snapshot()
	assert.Equal(t, StatusReconnecting, during)
	assert.Equal(t, StatusConnected, s.ConnectionStatus)
	require.NotNil(t, s.LastSync)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "en", got.Locale)
	assert.Equal(t, ModeSettings, got.State.CurrentMode)
}

func TestTracker_SyncFailureDisconnectsAndStopsLoop(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	fail.Store(true)
	boom := errors.New("backend down")

	cfg := quietConfig()
	cfg.SyncInterval = 5 * time.Millisecond
	tr := newTestTracker(t, cfg, SyncFunc(func(ctx context.Context, p SyncPayload) error {
		calls.Add(1)
		if fail.Load() {
			return boom
		}
		return nil
	}))
	require.NoError(t, tr.Start(context.Background()))

	require.Eventually(t, func() bool {
		return tr.Snapshot().ConnectionStatus == StatusDisconnected
	}, time.Second, time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "loop does not sync while disconnected")
	assert.Nil(t, tr.Snapshot().LastSync)

	fail.Store(false)
	require.NoError(t, tr.SyncNow(context.Background()))
	assert.Equal(t, StatusConnected, tr.Snapshot().ConnectionStatus)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestTracker_SyncNowError(t *testing.T) {
	boom := errors.New("nope")
	tr := newTestTracker(t, quietConfig(), SyncFunc(func(context.Context, SyncPayload) error { return boom }))

	err := tr.SyncNow(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusDisconnected, tr.Snapshot().ConnectionStatus)
}

func TestTracker_StopCancelsInFlightSync(t *testing.T) {
	entered := make(chan struct{})
	cfg := quietConfig()
	cfg.SyncInterval = time.Millisecond
	var once sync.Once
	tr := newTestTracker(t, cfg, SyncFunc(func(ctx context.Context, p SyncPayload) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, tr.Start(context.Background()))
	<-entered

	tr.Stop()
	assert.Equal(t, StatusDisconnected, tr.Snapshot().ConnectionStatus)
}

func TestTracker_ConcurrentSyncNow(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	tr := newTestTracker(t, quietConfig(), SyncFunc(func(ctx context.Context, p SyncPayload) error {
		close(entered)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- tr.SyncNow(context.Background()) }()
	<-entered

	assert.ErrorIs(t, tr.SyncNow(context.Background()), ErrSyncInProgress)
	close(release)
	assert.NoError(t, <-done)
}

type countingRecorder struct {
	mu         sync.Mutex
	activities int
	started    int
	finished   map[string]int
	syncs      map[bool]int
	live       int
	suggested  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{finished: map[string]int{}, syncs: map[bool]int{}}
}

func (r *countingRecorder) ActivityTracked(string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities++
}

func (r *countingRecorder) OperationStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) OperationFinished(_, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[status]++
}

func (r *countingRecorder) SuggestionAdded(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suggested++
}

func (r *countingRecorder) SyncFinished(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs[ok]++
}

func (r *countingRecorder) WorkspacesLive(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = n
}

func TestTracker_Recorder(t *testing.T) {
	rec := newCountingRecorder()
	tr := newTestTracker(t, quietConfig(), nil)
	tr.SetRecorder(rec)

	id := tr.StartAIOperation(OperationInput{Type: "summarize"})
	tr.CompleteAIOperation(id, nil)
	tr.CompleteAIOperation(id, nil)
	tr.AddSuggestion(Suggestion{Type: SuggestionShortcut, Title: "Ctrl+K"})
	require.NoError(t, tr.SyncNow(context.Background()))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.suggested)
	assert.Equal(t, 1, rec.activities)
	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 1, rec.finished["completed"])
	assert.Equal(t, 1, rec.syncs[true])
}
