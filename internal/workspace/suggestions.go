package workspace

import (
	"encoding/json"
	"time"
)

// SweepSuggestions removes every suggestion that expired before now and
// returns how many were removed.
func (t *Tracker) SweepSuggestions(now time.Time) int {
	removed := 0
	for _, s := range t.current().Suggestions {
		if s.Expired(now) {
			t.dispatch(RemoveSuggestion{ID: s.ID})
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug().Int("removed", removed).Msg("expired suggestions swept")
	}
	return removed
}

// runSuggestionSweep is the debounced sweep: expiry first, then the
// usage heuristics.
func (t *Tracker) runSuggestionSweep() {
	now := t.reducer.Now()
	t.SweepSuggestions(now)

	s := t.current()
	if s.CurrentMode == ModeTranslation && s.CountActivities(ActivityTranslation) > t.cfg.TranslationThreshold {
		ctx, _ := json.Marshal(map[string]any{
			"mode":         s.CurrentMode,
			"translations": s.CountActivities(ActivityTranslation),
		})
		expires := now.Add(t.cfg.SuggestionTTL)
		sug := t.AddSuggestion(Suggestion{
			Type:        SuggestionFeature,
			Title:       "Try Document Translation",
			Description: "Translate entire documents while preserving formatting",
			Priority:    PriorityMedium,
			Context:     ctx,
			Expires:     &expires,
		})
		t.logger.Debug().Str("suggestion_id", sug.ID).Msg("suggestion added")
	}
}
