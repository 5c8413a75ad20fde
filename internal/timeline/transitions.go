package timeline

import (
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// TransitionUpdate carries the editable transition parameters. Nil fields
// keep their current value, or the default on creation.
type TransitionUpdate struct {
	Type     *models.TransitionType
	Easing   *models.Easing
	Duration *float64
}

// checkPair validates that a transition may sit between from and to.
func (m *Model) checkPair(op, fromID, toID string) (*models.Clip, *models.Clip, error) {
	from, to := m.clip(fromID), m.clip(toID)
	if from == nil || to == nil {
		return nil, nil, m.reject(op, ErrClipNotFound, "from_clip_id", fromID, "to_clip_id", toID)
	}
	if from.TrackID != to.TrackID {
		return nil, nil, m.reject(op, ErrNotOnSameTrack, "from_clip_id", fromID, "to_clip_id", toID)
	}
	if m.trackLocked(from.TrackID) {
		return nil, nil, m.reject(op, ErrTrackLocked, "track_id", from.TrackID, "from_clip_id", fromID, "to_clip_id", toID)
	}
	if !Adjacent(m.clipValues(), fromID, toID) {
		return nil, nil, m.reject(op, ErrNotAdjacent, "from_clip_id", fromID, "to_clip_id", toID)
	}
	return from, to, nil
}

func applyTransitionUpdate(t *models.Transition, u TransitionUpdate) {
	if u.Type != nil {
		t.Type = *u.Type
	}
	if u.Easing != nil {
		t.Easing = *u.Easing
	}
	if u.Duration != nil {
		t.Duration = *u.Duration
	}
	if !t.Type.Valid() {
		t.Type = models.TransitionDefaultType
	}
	if !t.Easing.Valid() {
		t.Easing = models.TransitionDefaultEasing
	}
}

// SetTransitionBetween creates the transition joining two adjacent clips,
// or updates it when one already exists.
func (m *Model) SetTransitionBetween(fromID, toID string, u TransitionUpdate) (models.Transition, error) {
	const op = "set_transition"
	from, to, err := m.checkPair(op, fromID, toID)
	if err != nil {
		return models.Transition{}, err
	}

	now := m.now()
	idx := m.transitionIndexBetween(fromID, toID)
	var t models.Transition
	if idx >= 0 {
		t = m.transitions[idx]
	} else {
		t = models.Transition{
			ID:         m.newID(),
			TrackID:    from.TrackID,
			FromClipID: fromID,
			ToClipID:   toID,
			Type:       models.TransitionDefaultType,
			Easing:     models.TransitionDefaultEasing,
			Duration:   models.TransitionDefaultDuration,
			CreatedAt:  now,
		}
	}
	applyTransitionUpdate(&t, u)

	d, ok := ClampTransitionDuration(t.Duration, *from, *to)
	if !ok {
		return models.Transition{}, m.reject(op, ErrInvalidTiming, "from_clip_id", fromID, "to_clip_id", toID)
	}
	t.Duration = d
	t.UpdatedAt = now

	if idx >= 0 {
		m.transitions[idx] = t
	} else {
		m.transitions = append(m.transitions, t)
	}
	return t, nil
}

// UpdateTransition edits an existing transition by id.
func (m *Model) UpdateTransition(transitionID string, u TransitionUpdate) (models.Transition, error) {
	const op = "update_transition"
	idx := m.transitionIndex(transitionID)
	if idx < 0 {
		return models.Transition{}, m.reject(op, ErrTransitionNotFound, "transition_id", transitionID)
	}
	cur := m.transitions[idx]
	from, to, err := m.checkPair(op, cur.FromClipID, cur.ToClipID)
	if err != nil {
		return models.Transition{}, err
	}

	applyTransitionUpdate(&cur, u)
	d, ok := ClampTransitionDuration(cur.Duration, *from, *to)
	if !ok {
		return models.Transition{}, m.reject(op, ErrInvalidTiming, "transition_id", transitionID)
	}
	cur.Duration = d
	cur.UpdatedAt = m.now()
	m.transitions[idx] = cur
	return cur, nil
}

// RemoveTransition deletes a transition by id.
func (m *Model) RemoveTransition(transitionID string) error {
	const op = "remove_transition"
	idx := m.transitionIndex(transitionID)
	if idx < 0 {
		return m.reject(op, ErrTransitionNotFound, "transition_id", transitionID)
	}
	if t := m.transitions[idx]; m.trackLocked(t.TrackID) {
		return m.reject(op, ErrTrackLocked, "transition_id", transitionID, "track_id", t.TrackID)
	}
	m.transitions = append(m.transitions[:idx], m.transitions[idx+1:]...)
	return nil
}

// RemoveTransitionBetween deletes the transition joining two clips.
func (m *Model) RemoveTransitionBetween(fromID, toID string) error {
	const op = "remove_transition"
	idx := m.transitionIndexBetween(fromID, toID)
	if idx < 0 {
		return m.reject(op, ErrTransitionNotFound, "from_clip_id", fromID, "to_clip_id", toID)
	}
	if t := m.transitions[idx]; m.trackLocked(t.TrackID) {
		return m.reject(op, ErrTrackLocked, "track_id", t.TrackID, "from_clip_id", fromID, "to_clip_id", toID)
	}
	m.transitions = append(m.transitions[:idx], m.transitions[idx+1:]...)
	return nil
}

func (m *Model) transitionIndex(id string) int {
	for i, t := range m.transitions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m *Model) transitionIndexBetween(fromID, toID string) int {
	for i, t := range m.transitions {
		if t.FromClipID == fromID && t.ToClipID == toID {
			return i
		}
	}
	return -1
}
