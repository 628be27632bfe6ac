package domain

import (
	"errors"
	"sort"
)

var ErrNoMatchingTemplate = errors.New("no routine template matches the current context")

// ContextMatchBoost is added to a rule's priority for every non-empty
// dimension that contains the current context value.
const ContextMatchBoost = 10

type TemplateScore struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Eligible   bool   `json:"eligible"`
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// ScoreTemplate returns the template's match score and whether it may be
// picked at all. A template without an enabled rule is never eligible; a
// rule dimension that is set but misses the context excludes the template.
func ScoreTemplate(t *RoutineTemplate, ctx Context) (int, bool) {
	if t == nil || t.ContextRule == nil || !t.ContextRule.Enabled {
		return 0, false
	}
	rule := t.ContextRule
	score := rule.EffectivePriority()

	dimensions := []struct {
		set   []string
		value string
	}{
		{rule.TimeSlots, ctx.TimeSlot},
		{rule.DayCategories, ctx.DayCategory},
		{rule.LocationCategories, ctx.LocationCategory},
	}
	for _, d := range dimensions {
		if len(d.set) == 0 {
			continue
		}
		if !contains(d.set, d.value) {
			return 0, false
		}
		score += ContextMatchBoost
	}
	return score, true
}

// ranksBefore orders candidates with equal scores: most recently used first,
// never-used last, then by id.
func ranksBefore(a, b *RoutineTemplate) bool {
	switch {
	case a.LastUsedAt != nil && b.LastUsedAt == nil:
		return true
	case a.LastUsedAt == nil && b.LastUsedAt != nil:
		return false
	case a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
		return a.LastUsedAt.After(*b.LastUsedAt)
	}
	return a.ID < b.ID
}

// SelectBestTemplate picks the highest scoring eligible template. When none is
// eligible it falls back to the default template, or nil.
func SelectBestTemplate(templates []*RoutineTemplate, ctx Context) *RoutineTemplate {
	var best *RoutineTemplate
	bestScore := 0

	for _, t := range templates {
		score, ok := ScoreTemplate(t, ctx)
		if !ok {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && ranksBefore(t, best)) {
			best = t
			bestScore = score
		}
	}
	if best != nil {
		return best
	}

	var fallback *RoutineTemplate
	for _, t := range templates {
		if t == nil || !t.IsDefault {
			continue
		}
		if fallback == nil || t.ID < fallback.ID {
			fallback = t
		}
	}
	return fallback
}

// ExplainSelection scores every template, best first.
func ExplainSelection(templates []*RoutineTemplate, ctx Context) []TemplateScore {
	scores := make([]TemplateScore, 0, len(templates))
	byID := make(map[string]*RoutineTemplate, len(templates))
	for _, t := range templates {
		if t == nil {
			continue
		}
		score, ok := ScoreTemplate(t, ctx)
		scores = append(scores, TemplateScore{TemplateID: t.ID, Name: t.Name, Score: score, Eligible: ok})
		byID[t.ID] = t
	}

	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Eligible != b.Eligible {
			return a.Eligible
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return ranksBefore(byID[a.TemplateID], byID[b.TemplateID])
	})
	return scores
}
