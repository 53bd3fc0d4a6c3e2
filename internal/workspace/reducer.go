package workspace

import "time"

// Reducer computes state transitions. Its only inputs besides the state and
// action are the injected clock and id source, so a Reducer with a fixed
// clock and ids is deterministic.
type Reducer struct {
	Now    func() time.Time
	NewID  IDSource
	Limits Limits
}

// NewReducer returns a Reducer using the wall clock and random ids.
func NewReducer(limits Limits) *Reducer {
	return &Reducer{
		Now:    time.Now,
		NewID:  NewIDSource(time.Now),
		Limits: limits,
	}
}

// Reduce returns the state that results from applying a to s. It never
// mutates s. An action type it does not recognize leaves the state unchanged.
func (r *Reducer) Reduce(s State, a Action) State {
	switch act := a.(type) {
	case SetMode:
		return r.setMode(s, act)
	case AddActivity:
		return r.addActivity(s, act)
	case StartOperation:
		return r.startOperation(s, act)
	case UpdateOperation:
		return r.updateOperation(s, act)
	case AddSuggestion:
		return r.addSuggestion(s, act)
	case RemoveSuggestion:
		return removeSuggestion(s, act)
	case UpdateContext:
		return updateContext(s, act)
	case UpdatePatterns:
		return updatePatterns(s, act)
	case AddInsight:
		return r.addInsight(s, act)
	case SetConnectionStatus:
		s.ConnectionStatus = act.Status
		return s
	case SyncComplete:
		at := act.At
		if at.IsZero() {
			at = r.Now()
		}
		s.LastSync = &at
		return s
	default:
		return s
	}
}

func (r *Reducer) setMode(s State, act SetMode) State {
	s.PreviousMode = s.CurrentMode
	s.CurrentMode = act.Mode
	s.ModeEnteredAt = r.Now()
	s.Context = s.Context.clone()
	s.Context.CurrentMode = act.Mode
	return s
}

func (r *Reducer) addActivity(s State, act AddActivity) State {
	entry := Activity{
		ID:        act.ID,
		Type:      act.Type,
		Mode:      act.Mode,
		Timestamp: act.Timestamp,
		Success:   act.Success,
		Data:      act.Data,
	}
	if entry.ID == "" {
		entry.ID = r.NewID(prefixActivity)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.Now()
	}
	if entry.Mode == "" {
		entry.Mode = s.CurrentMode
	}

	s.Activities = prepend(s.Activities, entry, r.Limits.Activities)
	s.Context = s.Context.clone()
	s.Context.LastActivityID = entry.ID
	return s
}

func (r *Reducer) startOperation(s State, act StartOperation) State {
	id := act.ID
	if id == "" {
		id = r.NewID(prefixOperation)
	} else if _, ok := s.FindActiveOperation(id); ok {
		return s
	} else if _, ok := s.FindCompletedOperation(id); ok {
		return s
	}

	now := r.Now()
	started := now
	op := AIOperation{
		ID:        id,
		Type:      act.Type,
		Status:    OperationProcessing,
		Progress:  0,
		Input:     act.Input,
		CreatedAt: now,
		StartedAt: &started,
	}

	active := make([]AIOperation, 0, len(s.ActiveOperations)+1)
	active = append(active, s.ActiveOperations...)
	s.ActiveOperations = append(active, op)
	s.IsProcessing = true
	return s
}

func (r *Reducer) updateOperation(s State, act UpdateOperation) State {
	idx := -1
	for i, op := range s.ActiveOperations {
		if op.ID == act.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s
	}

	op := s.ActiveOperations[idx].clone()
	upd := act.Update
	if upd.Status != nil {
		op.Status = *upd.Status
	}
	if upd.Progress != nil {
		op.Progress = clampProgress(*upd.Progress)
	}
	if upd.Output != nil {
		op.Output = upd.Output
	}
	if upd.Error != nil {
		op.Error = *upd.Error
	}
	if op.Status == OperationProcessing && op.StartedAt == nil {
		started := r.Now()
		op.StartedAt = &started
	}

	if !op.Status.IsTerminal() {
		active := append([]AIOperation(nil), s.ActiveOperations...)
		active[idx] = op
		s.ActiveOperations = active
		s.IsProcessing = len(active) > 0
		return s
	}

	completedAt := r.Now()
	op.CompletedAt = &completedAt

	active := make([]AIOperation, 0, len(s.ActiveOperations)-1)
	active = append(active, s.ActiveOperations[:idx]...)
	active = append(active, s.ActiveOperations[idx+1:]...)
	s.ActiveOperations = active
	s.CompletedOperations = prepend(s.CompletedOperations, op, r.Limits.CompletedOperations)
	s.IsProcessing = len(active) > 0
	return s
}

func (r *Reducer) addSuggestion(s State, act AddSuggestion) State {
	sug := act.Suggestion
	if sug.ID == "" {
		sug.ID = r.NewID(prefixSuggestion)
	}
	out := make([]Suggestion, 0, len(s.Suggestions)+1)
	out = append(out, s.Suggestions...)
	s.Suggestions = append(out, sug)
	return s
}

func removeSuggestion(s State, act RemoveSuggestion) State {
	out := make([]Suggestion, 0, len(s.Suggestions))
	for _, sug := range s.Suggestions {
		if sug.ID != act.ID {
			out = append(out, sug)
		}
	}
	s.Suggestions = out
	return s
}

func updateContext(s State, act UpdateContext) State {
	ctx := s.Context.clone()
	p := act.Patch
	if p.ActiveDocuments != nil {
		ctx.ActiveDocuments = append([]string{}, p.ActiveDocuments...)
	}
	if p.LastActivityID != nil {
		ctx.LastActivityID = *p.LastActivityID
	}
	if p.Cursor != nil {
		cur := *p.Cursor
		ctx.Cursor = &cur
	}
	if p.Viewport != nil {
		vp := *p.Viewport
		ctx.Viewport = &vp
	}
	s.Context = ctx
	return s
}

func updatePatterns(s State, act UpdatePatterns) State {
	patterns := s.Patterns.clone()
	if act.Patterns.UsageTime != nil {
		patterns.UsageTime = UserPatterns{UsageTime: act.Patterns.UsageTime}.clone().UsageTime
	}
	if act.Patterns.FeatureUsage != nil {
		patterns.FeatureUsage = UserPatterns{FeatureUsage: act.Patterns.FeatureUsage}.clone().FeatureUsage
	}
	s.Patterns = patterns
	return s
}

func (r *Reducer) addInsight(s State, act AddInsight) State {
	ins := act.Insight
	if ins.ID == "" {
		ins.ID = r.NewID(prefixInsight)
	}
	if ins.CreatedAt.IsZero() {
		ins.CreatedAt = r.Now()
	}
	s.Insights = prepend(s.Insights, ins, r.Limits.Insights)
	return s
}

// prepend returns a new slice with v in front of items, truncated to limit
// when limit is positive.
func prepend[T any](items []T, v T, limit int) []T {
	n := len(items) + 1
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]T, 0, n)
	out = append(out, v)
	for _, item := range items {
		if len(out) == n {
			break
		}
		out = append(out, item)
	}
	return out
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
