package domain

import (
	"errors"
	"time"
)

var (
	ErrNotConditional  = errors.New("habit is not a conditional question")
	ErrOptionNotFound  = errors.New("conditional option not found")
	ErrNothingSelected = errors.New("conditional has no selected option")
)

// SelectOption answers a conditional habit. The chosen option's follow-ups are
// spliced in right after the conditional; a previously chosen option on the
// same conditional is collapsed first, and the entries recorded against it
// move to RetractedCompletions. Nesting depth is trusted as authored.
func (s *RoutineSession) SelectOption(conditionalHabitID, optionID string, now time.Time) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	idx := s.indexOf(conditionalHabitID)
	if idx < 0 {
		return ErrHabitNotInSequence
	}
	parent := s.Sequence[idx]
	if !parent.Habit.IsConditional() {
		return ErrNotConditional
	}
	option, ok := parent.Habit.Type.Conditional.Option(optionID)
	if !ok {
		return ErrOptionNotFound
	}

	if prev, expanded := s.ExpandedOptions[conditionalHabitID]; expanded && prev == optionID && s.hasEntry(conditionalHabitID) {
		return nil
	}

	s.collapse(conditionalHabitID)
	s.retract(map[string]bool{conditionalHabitID: true})

	spliced := s.splice(idx, parent, option)
	s.ExpandedOptions[conditionalHabitID] = optionID

	s.record(idx, false, nil, "Selected: "+option.Text, now)

	// Answering from further down the routine pulls the cursor back to the
	// first new follow-up.
	if first := idx + 1; spliced > 0 && s.CurrentHabitIndex > first && !s.hasEntry(s.Sequence[first].Habit.ID) {
		s.moveCursor(first, now)
	}
	return nil
}

// ClearOption undoes an answer: the expanded follow-ups are removed, the
// conditional's entry is retracted and the cursor returns to the question.
func (s *RoutineSession) ClearOption(conditionalHabitID string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	idx := s.indexOf(conditionalHabitID)
	if idx < 0 {
		return ErrHabitNotInSequence
	}
	if !s.Sequence[idx].Habit.IsConditional() {
		return ErrNotConditional
	}
	if _, expanded := s.ExpandedOptions[conditionalHabitID]; !expanded && !s.hasEntry(conditionalHabitID) {
		return ErrNothingSelected
	}

	s.collapse(conditionalHabitID)
	s.retract(map[string]bool{conditionalHabitID: true})
	s.CurrentHabitIndex = s.indexOf(conditionalHabitID)
	return nil
}

// SelectedOption returns the option currently expanded for a conditional.
func (s *RoutineSession) SelectedOption(conditionalHabitID string) (string, bool) {
	id, ok := s.ExpandedOptions[conditionalHabitID]
	return id, ok
}

// descendants collects every habit spliced in, directly or through nested
// conditionals, below the given conditional.
func (s *RoutineSession) descendants(conditionalHabitID string) map[string]bool {
	out := make(map[string]bool)
	parents := map[string]bool{conditionalHabitID: true}
	for len(parents) > 0 {
		next := make(map[string]bool)
		for _, item := range s.Sequence {
			if parents[item.ParentHabitID] && !out[item.Habit.ID] {
				out[item.Habit.ID] = true
				next[item.Habit.ID] = true
			}
		}
		parents = next
	}
	return out
}

func (s *RoutineSession) collapse(conditionalHabitID string) {
	delete(s.ExpandedOptions, conditionalHabitID)

	removed := s.descendants(conditionalHabitID)
	if len(removed) == 0 {
		return
	}

	currentID := ""
	if len(s.Sequence) > 0 {
		currentID = s.Sequence[clampIndex(s.CurrentHabitIndex, len(s.Sequence))].Habit.ID
	}

	kept := make([]SequenceItem, 0, len(s.Sequence)-len(removed))
	for _, item := range s.Sequence {
		if removed[item.Habit.ID] {
			delete(s.ExpandedOptions, item.Habit.ID)
			continue
		}
		kept = append(kept, item)
	}
	s.Sequence = kept
	s.retract(removed)

	if removed[currentID] {
		s.CurrentHabitIndex = s.indexOf(conditionalHabitID)
		return
	}
	s.CurrentHabitIndex = clampIndex(s.indexOf(currentID), len(s.Sequence))
}

func (s *RoutineSession) splice(idx int, parent SequenceItem, option ConditionalOption) int {
	followUps := activeSorted(option.FollowUp)
	if len(followUps) == 0 {
		return 0
	}

	inserted := make([]SequenceItem, 0, len(followUps))
	for _, h := range followUps {
		inserted = append(inserted, SequenceItem{
			Habit:         h,
			ParentHabitID: parent.Habit.ID,
			OptionID:      option.ID,
			Depth:         parent.Depth + 1,
		})
	}

	sequence := make([]SequenceItem, 0, len(s.Sequence)+len(inserted))
	sequence = append(sequence, s.Sequence[:idx+1]...)
	sequence = append(sequence, inserted...)
	sequence = append(sequence, s.Sequence[idx+1:]...)
	s.Sequence = sequence

	if s.CurrentHabitIndex > idx {
		s.CurrentHabitIndex += len(inserted)
	}
	return len(inserted)
}

// retract moves entries for the given habits out of the live log into the
// audit list, preserving their order.
func (s *RoutineSession) retract(habitIDs map[string]bool) {
	kept := make([]HabitCompletion, 0, len(s.HabitCompletions))
	for _, c := range s.HabitCompletions {
		if habitIDs[c.HabitID] {
			s.RetractedCompletions = append(s.RetractedCompletions, c)
			continue
		}
		kept = append(kept, c)
	}
	s.HabitCompletions = kept
}
