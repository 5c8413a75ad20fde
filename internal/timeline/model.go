// Package timeline owns the editable track/clip/transition state of a
// project and keeps its layout invariants after every edit.
//
// A Model is not safe for concurrent use. Callers serialize access the way
// a UI event loop would.
package timeline

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// Model is the canonical mutable timeline.
type Model struct {
	tracks      []*models.Track
	clips       []*models.Clip // storage order; breaks start-time ties
	transitions []models.Transition

	selectedClipID string
	playhead       float64

	logger *logging.Logger
	newID  func() string
	now    func() time.Time
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for rejection diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(m *Model) { m.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(m *Model) { m.now = fn }
}

// WithTracks replaces the default track set.
func WithTracks(tracks ...models.Track) Option {
	return func(m *Model) {
		m.tracks = m.tracks[:0]
		for _, t := range tracks {
			t := t
			t.Normalize()
			m.tracks = append(m.tracks, &t)
		}
		m.sortTracks()
	}
}

// DefaultTracks is the track set a new project starts with.
func DefaultTracks() []models.Track {
	return []models.Track{
		{ID: "video-1", Type: models.TrackTypeVideo, Name: "Video 1", Order: 0, IsVisible: true, Volume: 100, Height: 1},
		{ID: "overlay-1", Type: models.TrackTypeOverlay, Name: "Overlay 1", Order: 1, IsVisible: true, Volume: 100, Height: 1},
		{ID: "audio-1", Type: models.TrackTypeAudio, Name: "Audio 1", Order: 2, IsVisible: true, Volume: 100, Height: 1},
	}
}

// New creates a model holding the default tracks.
func New(opts ...Option) *Model {
	m := &Model{
		logger: logging.NewNopLogger(),
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
	WithTracks(DefaultTracks()...)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tracks returns copies of all tracks in display order.
func (m *Model) Tracks() []models.Track {
	out := make([]models.Track, len(m.tracks))
	for i, t := range m.tracks {
		out[i] = t.Clone()
	}
	return out
}

// Track returns a copy of one track.
func (m *Model) Track(id string) (models.Track, bool) {
	if t := m.track(id); t != nil {
		return t.Clone(), true
	}
	return models.Track{}, false
}

// Clips returns copies of all clips in storage order.
func (m *Model) Clips() []models.Clip {
	out := make([]models.Clip, len(m.clips))
	for i, c := range m.clips {
		out[i] = c.Clone()
	}
	return out
}

// Clip returns a copy of one clip.
func (m *Model) Clip(id string) (models.Clip, bool) {
	if c := m.clip(id); c != nil {
		return c.Clone(), true
	}
	return models.Clip{}, false
}

// TrackClips returns copies of one track's clips in start order.
func (m *Model) TrackClips(trackID string) []models.Clip {
	var out []models.Clip
	for _, c := range m.clips {
		if c.TrackID == trackID {
			out = append(out, c.Clone())
		}
	}
	return SortByStart(out)
}

// Transitions returns copies of all transitions.
func (m *Model) Transitions() []models.Transition {
	return models.CloneTransitions(m.transitions)
}

// TransitionBetween returns the transition joining two clips, if any.
func (m *Model) TransitionBetween(fromID, toID string) (models.Transition, bool) {
	for _, t := range m.transitions {
		if t.FromClipID == fromID && t.ToClipID == toID {
			return t, true
		}
	}
	return models.Transition{}, false
}

// SelectedClipID returns the active selection, or "".
func (m *Model) SelectedClipID() string {
	return m.selectedClipID
}

// Select sets the active selection. Unknown ids clear it.
func (m *Model) Select(clipID string) {
	if m.clip(clipID) == nil {
		m.selectedClipID = ""
		return
	}
	m.selectedClipID = clipID
}

// Playhead returns the playhead position in timeline seconds.
func (m *Model) Playhead() float64 {
	return m.playhead
}

// SetPlayhead moves the playhead, clamped at zero.
func (m *Model) SetPlayhead(t float64) {
	if t < 0 {
		t = 0
	}
	m.playhead = t
}

// TotalDuration is the end of the last clip on any track.
func (m *Model) TotalDuration() float64 {
	var end float64
	for _, c := range m.clips {
		if c.End > end {
			end = c.End
		}
	}
	return end
}

// AddTrack appends a new track after the existing ones.
func (m *Model) AddTrack(trackType models.TrackType, name string) models.Track {
	order := 0
	for _, t := range m.tracks {
		if t.Order >= order {
			order = t.Order + 1
		}
	}
	t := &models.Track{
		ID:        m.newID(),
		Type:      models.NormalizeTrackType(string(trackType)),
		Name:      name,
		Order:     order,
		IsVisible: true,
		Volume:    100,
		Height:    1,
	}
	t.Normalize()
	m.tracks = append(m.tracks, t)
	m.sortTracks()
	return t.Clone()
}

// RemoveTrack deletes an empty, unlocked track.
func (m *Model) RemoveTrack(trackID string) error {
	const op = "remove_track"
	t := m.track(trackID)
	if t == nil {
		return m.reject(op, ErrTrackNotFound, "track_id", trackID)
	}
	if t.IsLocked {
		return m.reject(op, ErrTrackLocked, "track_id", trackID)
	}
	for _, c := range m.clips {
		if c.TrackID == trackID {
			return m.reject(op, ErrTrackNotEmpty, "track_id", trackID)
		}
	}
	for i, tr := range m.tracks {
		if tr.ID == trackID {
			m.tracks = append(m.tracks[:i], m.tracks[i+1:]...)
			break
		}
	}
	return nil
}

// updateTrack applies fn to a track and returns the normalized record.
// Lock state is the one setter that works on a locked track.
func (m *Model) updateTrack(op, trackID string, allowLocked bool, fn func(*models.Track)) (models.Track, error) {
	t := m.track(trackID)
	if t == nil {
		return models.Track{}, m.reject(op, ErrTrackNotFound, "track_id", trackID)
	}
	if t.IsLocked && !allowLocked {
		return t.Clone(), m.reject(op, ErrTrackLocked, "track_id", trackID)
	}
	fn(t)
	t.Normalize()
	return t.Clone(), nil
}

// SetTrackLocked locks or unlocks a track.
func (m *Model) SetTrackLocked(trackID string, locked bool) (models.Track, error) {
	return m.updateTrack("set_track_locked", trackID, true, func(t *models.Track) { t.IsLocked = locked })
}

// SetTrackVisible shows or hides a track.
func (m *Model) SetTrackVisible(trackID string, visible bool) (models.Track, error) {
	return m.updateTrack("set_track_visible", trackID, false, func(t *models.Track) { t.IsVisible = visible })
}

// SetTrackMuted mutes or unmutes a track.
func (m *Model) SetTrackMuted(trackID string, muted bool) (models.Track, error) {
	return m.updateTrack("set_track_muted", trackID, false, func(t *models.Track) { t.IsMuted = muted })
}

// SetTrackSolo solos or unsolos a track.
func (m *Model) SetTrackSolo(trackID string, solo bool) (models.Track, error) {
	return m.updateTrack("set_track_solo", trackID, false, func(t *models.Track) { t.IsSolo = solo })
}

// SetTrackVolume sets a track's volume, clamped to 0..100.
func (m *Model) SetTrackVolume(trackID string, volume float64) (models.Track, error) {
	return m.updateTrack("set_track_volume", trackID, false, func(t *models.Track) { t.Volume = volume })
}

// SetTrackHeight sets a track's display scale, clamped to 0.5..3.
func (m *Model) SetTrackHeight(trackID string, height float64) (models.Track, error) {
	return m.updateTrack("set_track_height", trackID, false, func(t *models.Track) {
		if height <= 0 {
			height = models.TrackHeightMin
		}
		t.Height = height
	})
}

// RenameTrack renames a track.
func (m *Model) RenameTrack(trackID, name string) (models.Track, error) {
	return m.updateTrack("rename_track", trackID, false, func(t *models.Track) { t.Name = name })
}

func (m *Model) sortTracks() {
	sort.SliceStable(m.tracks, func(i, j int) bool {
		return m.tracks[i].Order < m.tracks[j].Order
	})
}

func (m *Model) track(id string) *models.Track {
	for _, t := range m.tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (m *Model) clip(id string) *models.Clip {
	if id == "" {
		return nil
	}
	for _, c := range m.clips {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *Model) clipIndex(id string) int {
	for i, c := range m.clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// trackLocked reports whether the clip's owning track is locked. A clip
// whose track has vanished is treated as locked.
func (m *Model) trackLocked(trackID string) bool {
	t := m.track(trackID)
	return t == nil || t.IsLocked
}

// clipValues snapshots clips by value for the sanitizer.
func (m *Model) clipValues() []models.Clip {
	out := make([]models.Clip, len(m.clips))
	for i, c := range m.clips {
		out[i] = *c
	}
	return out
}

// rederive re-validates transitions against the current clip layout.
func (m *Model) rederive() {
	m.transitions = Sanitize(m.transitions, m.clipValues())
}
