package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

type timelineResponse struct {
	Tracks         []models.Track      `json:"tracks"`
	Clips          []models.Clip       `json:"clips"`
	Transitions    []models.Transition `json:"transitions"`
	Playhead       float64             `json:"playhead"`
	SelectedClipID string              `json:"selected_clip_id,omitempty"`
	TotalDuration  float64             `json:"total_duration"`
}

func snapshot(m *timeline.Model) timelineResponse {
	return timelineResponse{
		Tracks:         m.Tracks(),
		Clips:          m.Clips(),
		Transitions:    m.Transitions(),
		Playhead:       m.Playhead(),
		SelectedClipID: m.SelectedClipID(),
		TotalDuration:  m.TotalDuration(),
	}
}

// mutate runs one model edit, records it and answers with the resulting
// timeline, or the rejection.
func (s *Server) mutate(c *gin.Context, op string, fn func(m *timeline.Model) error) {
	var (
		err  error
		resp timelineResponse
	)
	s.withModel(func(m *timeline.Model) {
		err = fn(m)
		metrics.UpdateTimelineClips(len(m.Clips()))
		if err == nil {
			resp = snapshot(m)
		}
	})
	metrics.RecordTimelineMutation(op, err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getTimeline(c *gin.Context) {
	var resp timelineResponse
	s.withModel(func(m *timeline.Model) { resp = snapshot(m) })
	c.JSON(http.StatusOK, resp)
}

func (s *Server) setPlayhead(c *gin.Context) {
	var req struct {
		Time *float64 `json:"time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.mutate(c, "set_playhead", func(m *timeline.Model) error {
		m.SetPlayhead(*req.Time)
		return nil
	})
}

func (s *Server) selectClip(c *gin.Context) {
	var req struct {
		ClipID string `json:"clip_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.mutate(c, "select", func(m *timeline.Model) error {
		m.Select(req.ClipID)
		return nil
	})
}

// Tracks

func (s *Server) addTrack(c *gin.Context) {
	var req struct {
		Type models.TrackType `json:"type" binding:"required"`
		Name string           `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var track models.Track
	s.withModel(func(m *timeline.Model) { track = m.AddTrack(req.Type, req.Name) })
	metrics.RecordTimelineMutation("add_track", true)
	c.JSON(http.StatusCreated, track)
}

type trackPatch struct {
	Name    *string  `json:"name"`
	Locked  *bool    `json:"is_locked"`
	Visible *bool    `json:"is_visible"`
	Muted   *bool    `json:"is_muted"`
	Solo    *bool    `json:"is_solo"`
	Volume  *float64 `json:"volume"`
	Height  *float64 `json:"height"`
}

// apply runs the setters in an order that lets one patch unlock a track,
// edit it and lock it again.
func (p trackPatch) apply(m *timeline.Model, id string) (models.Track, error) {
	track, ok := m.Track(id)
	if !ok {
		// Unknown id: let the model log and build the rejection.
		_, err := m.SetTrackLocked(id, false)
		return models.Track{}, err
	}
	var err error
	if p.Locked != nil && !*p.Locked {
		if track, err = m.SetTrackLocked(id, false); err != nil {
			return track, err
		}
	}
	steps := []func() (models.Track, error){}
	if p.Name != nil {
		steps = append(steps, func() (models.Track, error) { return m.RenameTrack(id, *p.Name) })
	}
	if p.Visible != nil {
		steps = append(steps, func() (models.Track, error) { return m.SetTrackVisible(id, *p.Visible) })
	}
	if p.Muted != nil {
		steps = append(steps, func() (models.Track, error) { return m.SetTrackMuted(id, *p.Muted) })
	}
	if p.Solo != nil {
		steps = append(steps, func() (models.Track, error) { return m.SetTrackSolo(id, *p.Solo) })
	}
	if p.Volume != nil {
		steps = append(steps, func() (models.Track, error) { return m.SetTrackVolume(id, *p.Volume) })
	}
	if p.Height != nil {
		steps = append(steps, func() (models.Track, error) { return m.SetTrackHeight(id, *p.Height) })
	}
	if p.Locked != nil && *p.Locked {
		steps = append(steps, func() (models.Track, error) { return m.SetTrackLocked(id, true) })
	}
	for _, step := range steps {
		if track, err = step(); err != nil {
			return track, err
		}
	}
	return track, nil
}

func (s *Server) updateTrack(c *gin.Context) {
	var patch trackPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	var (
		track models.Track
		err   error
	)
	s.withModel(func(m *timeline.Model) { track, err = patch.apply(m, c.Param("id")) })
	metrics.RecordTimelineMutation("update_track", err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, track)
}

func (s *Server) removeTrack(c *gin.Context) {
	id := c.Param("id")
	s.mutate(c, "remove_track", func(m *timeline.Model) error { return m.RemoveTrack(id) })
}

// Clips

type clipRequest struct {
	ID          string   `json:"id"`
	TrackID     string   `json:"track_id"`
	MediaFileID string   `json:"media_file_id"`
	MediaType   string   `json:"media_type"`
	Name        string   `json:"name"`
	Start       float64  `json:"start"`
	End         *float64 `json:"end"`
	Duration    *float64 `json:"duration"`
	SourceIn    *float64 `json:"source_in"`
	SourceOut   *float64 `json:"source_out"`
	StartTrim   *float64 `json:"start_trim"`
	EndTrim     *float64 `json:"end_trim"`
	Volume      *float64 `json:"volume"`

	OverlayTransform *models.OverlayTransform `json:"overlay_transform"`
	TextOverlay      *models.TextOverlay      `json:"text_overlay"`
	RecordingMeta    *models.RecordingMeta    `json:"recording_meta"`
	Waveform         *models.Waveform         `json:"waveform"`
}

func (r clipRequest) input() timeline.ClipInput {
	return timeline.ClipInput{
		ID:               r.ID,
		TrackID:          r.TrackID,
		MediaFileID:      r.MediaFileID,
		MediaType:        r.MediaType,
		Name:             r.Name,
		Start:            r.Start,
		End:              r.End,
		Duration:         r.Duration,
		SourceIn:         r.SourceIn,
		SourceOut:        r.SourceOut,
		StartTrim:        r.StartTrim,
		EndTrim:          r.EndTrim,
		Volume:           r.Volume,
		OverlayTransform: r.OverlayTransform,
		TextOverlay:      r.TextOverlay,
		RecordingMeta:    r.RecordingMeta,
		Waveform:         r.Waveform,
	}
}

func (s *Server) addClip(c *gin.Context) {
	var req clipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var (
		clip models.Clip
		err  error
	)
	s.withModel(func(m *timeline.Model) {
		clip, err = m.AddClip(req.input())
		metrics.UpdateTimelineClips(len(m.Clips()))
	})
	metrics.RecordTimelineMutation("add_clip", err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, clip)
}

type clipPatch struct {
	Name        *string  `json:"name"`
	MediaFileID *string  `json:"media_file_id"`
	Start       *float64 `json:"start"`
	End         *float64 `json:"end"`
	Duration    *float64 `json:"duration"`
	SourceIn    *float64 `json:"source_in"`
	EndTrim     *float64 `json:"end_trim"`
	Volume      *float64 `json:"volume"`

	TextOverlay      *models.TextOverlay      `json:"text_overlay"`
	OverlayTransform *models.OverlayTransform `json:"overlay_transform"`
	RecordingMeta    *models.RecordingMeta    `json:"recording_meta"`
	Waveform         *models.Waveform         `json:"waveform"`
}

func (p clipPatch) update() timeline.ClipUpdate {
	return timeline.ClipUpdate{
		Name:             p.Name,
		MediaFileID:      p.MediaFileID,
		Start:            p.Start,
		End:              p.End,
		Duration:         p.Duration,
		SourceIn:         p.SourceIn,
		EndTrim:          p.EndTrim,
		Volume:           p.Volume,
		TextOverlay:      p.TextOverlay,
		OverlayTransform: p.OverlayTransform,
		RecordingMeta:    p.RecordingMeta,
		Waveform:         p.Waveform,
	}
}

func (s *Server) updateClip(c *gin.Context) {
	var patch clipPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	s.mutate(c, "update_clip", func(m *timeline.Model) error { return m.UpdateClip(id, patch.update()) })
}

func (s *Server) removeClip(c *gin.Context) {
	id := c.Param("id")
	s.mutate(c, "remove_clip", func(m *timeline.Model) error { return m.RemoveClip(id) })
}

func (s *Server) trimClip(c *gin.Context) {
	var req struct {
		Start *float64 `json:"start" binding:"required"`
		End   *float64 `json:"end" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	s.mutate(c, "trim_clip", func(m *timeline.Model) error { return m.TrimClip(id, *req.Start, *req.End) })
}

func (s *Server) splitClip(c *gin.Context) {
	id := c.Param("id")
	s.mutate(c, "split_clip", func(m *timeline.Model) error { return m.SplitClipAtPlayhead(id) })
}

func (s *Server) moveClip(c *gin.Context) {
	var req struct {
		TrackID string `json:"track_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	s.mutate(c, "move_clip", func(m *timeline.Model) error { return m.MoveClipToTrack(id, req.TrackID) })
}

func (s *Server) reorderClip(c *gin.Context) {
	var req struct {
		Position *int   `json:"position" binding:"required"`
		TrackID  string `json:"track_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	s.mutate(c, "reorder_clips", func(m *timeline.Model) error { return m.ReorderClips(id, *req.Position, req.TrackID) })
}

// Transitions

type transitionRequest struct {
	FromClipID string                 `json:"from_clip_id"`
	ToClipID   string                 `json:"to_clip_id"`
	Type       *models.TransitionType `json:"type"`
	Easing     *models.Easing         `json:"easing"`
	Duration   *float64               `json:"duration"`
}

func (r transitionRequest) update() timeline.TransitionUpdate {
	return timeline.TransitionUpdate{Type: r.Type, Easing: r.Easing, Duration: r.Duration}
}

func (s *Server) setTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.FromClipID == "" || req.ToClipID == "" {
		badRequest(c, errors.New("from_clip_id and to_clip_id are required"))
		return
	}

	var (
		tr  models.Transition
		err error
	)
	s.withModel(func(m *timeline.Model) { tr, err = m.SetTransitionBetween(req.FromClipID, req.ToClipID, req.update()) })
	metrics.RecordTimelineMutation("set_transition", err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) updateTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var (
		tr  models.Transition
		err error
	)
	s.withModel(func(m *timeline.Model) { tr, err = m.UpdateTransition(c.Param("id"), req.update()) })
	metrics.RecordTimelineMutation("update_transition", err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) removeTransition(c *gin.Context) {
	id := c.Param("id")
	s.mutate(c, "remove_transition", func(m *timeline.Model) error { return m.RemoveTransition(id) })
}
