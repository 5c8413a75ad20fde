package timeline

import (
	"math"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// MinClipDuration is the shortest window a trim can leave.
const MinClipDuration = 0.01

// ClipInput describes a clip to add. Nil numeric fields were not supplied
// and are derived from the others.
type ClipInput struct {
	ID          string
	TrackID     string
	MediaFileID string
	// MediaType is a free-form hint ("audio/wav", "text", "video") that is
	// normalized by substring match.
	MediaType string
	Name      string
	Start     float64

	End       *float64
	Duration  *float64
	SourceIn  *float64
	SourceOut *float64
	StartTrim *float64
	EndTrim   *float64
	Volume    *float64

	OverlayTransform *models.OverlayTransform
	TextOverlay      *models.TextOverlay
	RecordingMeta    *models.RecordingMeta
	Waveform         *models.Waveform
}

// ClipUpdate is a partial clip edit. Nil fields are left alone.
type ClipUpdate struct {
	Name        *string
	MediaFileID *string
	Start       *float64
	End         *float64
	Duration    *float64
	SourceIn    *float64
	EndTrim     *float64
	Volume      *float64

	// TextOverlay is merged: set fields replace, Style keys are merged
	// key by key into the existing style.
	TextOverlay *models.TextOverlay
	// The remaining pointers replace the existing value wholesale.
	OverlayTransform *models.OverlayTransform
	RecordingMeta    *models.RecordingMeta
	Waveform         *models.Waveform
}

// F returns a pointer to v, for building ClipInput and ClipUpdate values.
func F(v float64) *float64 { return &v }

// resolveDuration picks a duration from whatever subset of timing the
// caller supplied, preferring explicit values.
func resolveDuration(in ClipInput, start float64) float64 {
	switch {
	case in.Duration != nil && *in.Duration > 0:
		return *in.Duration
	case in.End != nil && *in.End > start:
		return *in.End - start
	case in.SourceOut != nil && *in.SourceOut > sourceInOf(in):
		return *in.SourceOut - sourceInOf(in)
	case in.EndTrim != nil && *in.EndTrim > 0:
		return *in.EndTrim
	}
	return 0
}

func sourceInOf(in ClipInput) float64 {
	switch {
	case in.SourceIn != nil:
		return math.Max(0, *in.SourceIn)
	case in.StartTrim != nil:
		return math.Max(0, *in.StartTrim)
	}
	return 0
}

// resolveTrack finds the track a new clip lands on: the requested track,
// else the first track of the clip's type, else the first track. A locked
// result falls back to the first unlocked track of the clip's type.
func (m *Model) resolveTrack(requested string, mediaType models.TrackType) *models.Track {
	var t *models.Track
	if requested != "" {
		t = m.track(requested)
	}
	if t == nil {
		for _, cand := range m.tracks {
			if cand.Type == mediaType {
				t = cand
				break
			}
		}
	}
	if t == nil && len(m.tracks) > 0 {
		t = m.tracks[0]
	}
	if t == nil || !t.IsLocked {
		return t
	}
	for _, cand := range m.tracks {
		if cand.Type == mediaType && !cand.IsLocked {
			return cand
		}
	}
	return nil
}

// AddClip places a new clip, fills in derived timing, selects it and
// re-derives transitions. Clips already on the target track are pushed
// later if the new clip overlaps them.
func (m *Model) AddClip(in ClipInput) (models.Clip, error) {
	const op = "add_clip"

	mediaType := models.NormalizeTrackType(in.MediaType)
	t := m.resolveTrack(in.TrackID, mediaType)
	if t == nil {
		return models.Clip{}, m.reject(op, ErrNoUnlockedTrack, "track_id", in.TrackID, "media_type", string(mediaType))
	}

	start := math.Max(0, in.Start)
	duration := resolveDuration(in, start)
	if duration <= 0 {
		return models.Clip{}, m.reject(op, ErrInvalidTiming, "track_id", t.ID)
	}

	id := in.ID
	if id == "" || m.clip(id) != nil {
		id = m.newID()
	}

	c := &models.Clip{
		ID:               id,
		TrackID:          t.ID,
		MediaFileID:      in.MediaFileID,
		MediaType:        mediaType,
		Name:             in.Name,
		Start:            start,
		Duration:         duration,
		SourceIn:         sourceInOf(in),
		EndTrim:          duration,
		Volume:           models.ClipVolumeDefault,
		OverlayTransform: in.OverlayTransform,
		TextOverlay:      in.TextOverlay.Clone(),
		RecordingMeta:    in.RecordingMeta,
		Waveform:         in.Waveform,
		CreatedAt:        m.now(),
	}
	if in.EndTrim != nil {
		c.EndTrim = *in.EndTrim
	}
	if in.Volume != nil {
		c.Volume = *in.Volume
	}
	// Copy the remaining caller-owned pointers so later caller edits
	// cannot reach the model.
	*c = c.Clone()
	c.Reconcile()

	m.clips = append(m.clips, c)
	m.resolveOverlaps(c.TrackID, c.ID)
	m.selectedClipID = c.ID
	m.rederive()
	return c.Clone(), nil
}

// UpdateClip applies a partial edit. Timing edits keep End = Start +
// Duration and push later clips if the clip now overlaps them.
func (m *Model) UpdateClip(clipID string, u ClipUpdate) error {
	const op = "update_clip"
	c := m.clip(clipID)
	if c == nil {
		return m.reject(op, ErrClipNotFound, "clip_id", clipID)
	}
	if m.trackLocked(c.TrackID) {
		return m.reject(op, ErrTrackLocked, "clip_id", clipID, "track_id", c.TrackID)
	}

	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.MediaFileID != nil {
		c.MediaFileID = *u.MediaFileID
	}

	// An out point sitting at the clip's end keeps following it.
	endTrimAtEnd := c.EndTrim == c.Duration

	timing := false
	if u.Start != nil {
		c.Start = math.Max(0, *u.Start)
		timing = true
	}
	switch {
	case u.Duration != nil && *u.Duration > 0:
		c.Duration = *u.Duration
		timing = true
	case u.End != nil && *u.End > c.Start:
		c.Duration = *u.End - c.Start
		timing = true
	}
	if u.SourceIn != nil {
		c.SourceIn = *u.SourceIn
	}
	switch {
	case u.EndTrim != nil:
		c.EndTrim = *u.EndTrim
	case endTrimAtEnd:
		c.EndTrim = c.Duration
	}
	if u.Volume != nil {
		c.Volume = *u.Volume
	}

	if u.TextOverlay != nil {
		c.TextOverlay = mergeTextOverlay(c.TextOverlay, u.TextOverlay)
	}
	if u.OverlayTransform != nil {
		ot := *u.OverlayTransform
		c.OverlayTransform = &ot
	}
	if u.RecordingMeta != nil {
		rm := *u.RecordingMeta
		c.RecordingMeta = &rm
	}
	if u.Waveform != nil {
		c.Waveform = (models.Clip{Waveform: u.Waveform}).Clone().Waveform
	}

	c.Reconcile()
	if timing {
		m.resolveOverlaps(c.TrackID, c.ID)
	}
	m.rederive()
	return nil
}

// mergeTextOverlay overlays next onto prev. Style is merged key by key;
// every other set field replaces the previous value.
func mergeTextOverlay(prev, next *models.TextOverlay) *models.TextOverlay {
	if prev == nil {
		return next.Clone()
	}
	out := prev.Clone()
	if next.Text != "" {
		out.Text = next.Text
	}
	if len(next.Style) > 0 {
		if out.Style == nil {
			out.Style = make(map[string]string, len(next.Style))
		}
		for k, v := range next.Style {
			out.Style[k] = v
		}
	}
	if next.Position != nil {
		p := *next.Position
		out.Position = &p
	}
	if next.Animation != nil {
		out.Animation = next.Clone().Animation
	}
	return out
}

// TrimClip sets a clip's timeline window to [newStart, newEnd]. The source
// window follows the left edge; later clips on the track are rippled so
// they close up behind the clip's new end.
func (m *Model) TrimClip(clipID string, newStart, newEnd float64) error {
	const op = "trim_clip"
	c := m.clip(clipID)
	if c == nil {
		return m.reject(op, ErrClipNotFound, "clip_id", clipID)
	}
	if m.trackLocked(c.TrackID) {
		return m.reject(op, ErrTrackLocked, "clip_id", clipID, "track_id", c.TrackID)
	}

	oldStart := c.Start
	newStart = math.Max(newStart, 0)
	// The left edge cannot be dragged into the preceding clip.
	newStart = math.Max(newStart, m.previousEnd(c))
	// Nor past the start of the next one, which would reorder the track.
	newStart = math.Min(newStart, m.nextStart(c))
	newEnd = math.Max(newEnd, newStart+MinClipDuration)

	c.SourceIn += math.Max(0, newStart-oldStart)
	c.Start = newStart
	c.Duration = newEnd - newStart
	c.EndTrim = c.Duration
	c.Reconcile()

	m.rippleCollapse(c.TrackID, math.Min(oldStart, newStart), c.ID)
	m.rederive()
	return nil
}

// SplitClipAtPlayhead cuts a clip in two at the playhead. The left part
// keeps the id, the right part gets a new one and becomes the selection.
// Transitions leaving the original clip are dropped.
func (m *Model) SplitClipAtPlayhead(clipID string) error {
	const op = "split_clip"
	c := m.clip(clipID)
	if c == nil {
		return m.reject(op, ErrClipNotFound, "clip_id", clipID)
	}
	if m.trackLocked(c.TrackID) {
		return m.reject(op, ErrTrackLocked, "clip_id", clipID, "track_id", c.TrackID)
	}
	p := m.playhead
	if p <= c.Start || p >= c.End {
		return m.reject(op, ErrPlayheadOutsideClip, "clip_id", clipID)
	}

	right := c.Clone()
	right.ID = m.newID()
	right.CreatedAt = m.now()

	c.Duration = p - c.Start
	c.EndTrim = c.Duration
	c.Reconcile()

	right.Start = p
	right.Duration = right.End - p
	right.SourceIn = c.SourceOut
	right.EndTrim = right.Duration
	right.Reconcile()

	idx := m.clipIndex(c.ID)
	m.clips = append(m.clips, nil)
	copy(m.clips[idx+2:], m.clips[idx+1:])
	m.clips[idx+1] = &right

	kept := m.transitions[:0]
	for _, t := range m.transitions {
		if t.FromClipID != c.ID {
			kept = append(kept, t)
		}
	}
	m.transitions = kept

	m.selectedClipID = right.ID
	m.rederive()
	return nil
}

// RemoveClip deletes a clip and ripples the rest of its track back over
// the hole it leaves.
func (m *Model) RemoveClip(clipID string) error {
	const op = "remove_clip"
	c := m.clip(clipID)
	if c == nil {
		return m.reject(op, ErrClipNotFound, "clip_id", clipID)
	}
	if m.trackLocked(c.TrackID) {
		return m.reject(op, ErrTrackLocked, "clip_id", clipID, "track_id", c.TrackID)
	}

	idx := m.clipIndex(clipID)
	m.clips = append(m.clips[:idx], m.clips[idx+1:]...)
	if m.selectedClipID == clipID {
		m.selectedClipID = ""
	}

	m.rippleCollapse(c.TrackID, c.Start, "")

	kept := m.transitions[:0]
	for _, t := range m.transitions {
		if t.FromClipID != clipID && t.ToClipID != clipID {
			kept = append(kept, t)
		}
	}
	m.transitions = kept
	m.rederive()
	return nil
}

// MoveClipToTrack reassigns a clip to another track without changing its
// timing. Clips on the destination are pushed later if they now overlap.
func (m *Model) MoveClipToTrack(clipID, trackID string) error {
	const op = "move_clip"
	c := m.clip(clipID)
	if c == nil {
		return m.reject(op, ErrClipNotFound, "clip_id", clipID)
	}
	if m.trackLocked(c.TrackID) {
		return m.reject(op, ErrTrackLocked, "clip_id", clipID, "track_id", c.TrackID)
	}
	dest := m.track(trackID)
	if dest == nil {
		return m.reject(op, ErrTrackNotFound, "clip_id", clipID, "track_id", trackID)
	}
	if dest.IsLocked {
		return m.reject(op, ErrTrackLocked, "clip_id", clipID, "track_id", trackID)
	}
	if c.TrackID == trackID {
		return nil
	}

	c.TrackID = trackID
	m.resolveOverlaps(trackID, c.ID)
	m.rederive()
	return nil
}

// ReorderClips moves a clip to newPosition among the clips of its track
// in storage order. Storage order only matters where clips share a start
// time, which is when it decides adjacency.
func (m *Model) ReorderClips(clipID string, newPosition int, trackID string) error {
	const op = "reorder_clips"
	c := m.clip(clipID)
	if c == nil {
		return m.reject(op, ErrClipNotFound, "clip_id", clipID)
	}
	if trackID == "" {
		trackID = c.TrackID
	}
	if trackID != c.TrackID {
		return m.reject(op, ErrNotOnSameTrack, "clip_id", clipID, "track_id", trackID)
	}
	if m.trackLocked(trackID) {
		return m.reject(op, ErrTrackLocked, "clip_id", clipID, "track_id", trackID)
	}

	// Indices in m.clips of this track's clips.
	var slots []int
	var group []*models.Clip
	for i, tc := range m.clips {
		if tc.TrackID == trackID {
			slots = append(slots, i)
			if tc.ID != clipID {
				group = append(group, tc)
			}
		}
	}
	if newPosition < 0 || newPosition >= len(slots) {
		return m.reject(op, ErrInvalidPosition, "clip_id", clipID, "track_id", trackID)
	}

	group = append(group, nil)
	copy(group[newPosition+1:], group[newPosition:])
	group[newPosition] = c
	for i, slot := range slots {
		m.clips[slot] = group[i]
	}

	m.rederive()
	return nil
}
