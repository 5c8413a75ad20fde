package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

func TestAddClipDerivesTiming(t *testing.T) {
	tests := []struct {
		name         string
		in           ClipInput
		wantDuration float64
		wantSourceIn float64
	}{
		{
			name:         "explicit duration",
			in:           ClipInput{Start: 2, Duration: F(4), End: F(100)},
			wantDuration: 4,
		},
		{
			name:         "from end",
			in:           ClipInput{Start: 2, End: F(5)},
			wantDuration: 3,
		},
		{
			name:         "from source window",
			in:           ClipInput{Start: 1, SourceIn: F(10), SourceOut: F(16)},
			wantDuration: 6,
			wantSourceIn: 10,
		},
		{
			name:         "legacy start trim",
			in:           ClipInput{StartTrim: F(3), Duration: F(2)},
			wantDuration: 2,
			wantSourceIn: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel()
			tt.in.MediaType = "video/mp4"
			c, err := m.AddClip(tt.in)
			require.NoError(t, err)

			assert.InDelta(t, tt.wantDuration, c.Duration, 1e-9)
			assert.InDelta(t, c.Start+c.Duration, c.End, 1e-9)
			assert.InDelta(t, tt.wantSourceIn, c.SourceIn, 1e-9)
			assert.InDelta(t, c.SourceIn+c.Duration, c.SourceOut, 1e-9)
			assert.InDelta(t, c.Duration, c.EndTrim, 1e-9)
			assert.Equal(t, float64(models.ClipVolumeDefault), c.Volume)
			assert.Equal(t, "video-1", c.TrackID)
			assert.Equal(t, c.ID, m.SelectedClipID())
			assert.Equal(t, testEpoch, c.CreatedAt)
		})
	}
}

func TestAddClipRejectsMissingDuration(t *testing.T) {
	m := newTestModel()
	_, err := m.AddClip(ClipInput{Start: 3})
	assert.ErrorIs(t, err, ErrInvalidTiming)
	assert.Empty(t, m.Clips())
}

func TestAddClipResolvesTrackFromMediaType(t *testing.T) {
	m := newTestModel()

	audio, err := m.AddClip(ClipInput{MediaType: "audio/wav", Duration: F(2)})
	require.NoError(t, err)
	assert.Equal(t, "audio-1", audio.TrackID)
	assert.Equal(t, models.TrackTypeAudio, audio.MediaType)

	text, err := m.AddClip(ClipInput{MediaType: "text", Duration: F(2)})
	require.NoError(t, err)
	assert.Equal(t, "overlay-1", text.TrackID)

	// Unknown track ids fall back to type matching.
	vid, err := m.AddClip(ClipInput{TrackID: "nope", MediaType: "screen", Duration: F(2)})
	require.NoError(t, err)
	assert.Equal(t, "video-1", vid.TrackID)
}

func TestAddClipFallsBackFromLockedTrack(t *testing.T) {
	m := newTestModel()
	second := m.AddTrack(models.TrackTypeVideo, "Video 2")
	_, err := m.SetTrackLocked("video-1", true)
	require.NoError(t, err)

	c, err := m.AddClip(ClipInput{TrackID: "video-1", MediaType: "video", Duration: F(2)})
	require.NoError(t, err)
	assert.Equal(t, second.ID, c.TrackID)

	_, err = m.SetTrackLocked(second.ID, true)
	require.NoError(t, err)
	_, err = m.AddClip(ClipInput{TrackID: "video-1", MediaType: "video", Duration: F(2)})
	assert.ErrorIs(t, err, ErrNoUnlockedTrack)
	assert.Len(t, m.Clips(), 1)
}

func TestAddClipClampsVolume(t *testing.T) {
	m := newTestModel()
	c, err := m.AddClip(ClipInput{Duration: F(1), Volume: F(350)})
	require.NoError(t, err)
	assert.Equal(t, float64(models.ClipVolumeMax), c.Volume)
}

func TestAddClipPushesOverlaps(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 2, 3)

	assert.InDelta(t, 5.0, mustClip(t, m, "B").Start, 1e-9)

	// A clip dropped on another's start lands in front of it.
	addVideo(t, m, "C", 0, 1)
	assert.Equal(t, 0.0, mustClip(t, m, "C").Start)
	assert.InDelta(t, 1.0, mustClip(t, m, "A").Start, 1e-9)
	assert.InDelta(t, 6.0, mustClip(t, m, "B").Start, 1e-9)
	assertNoOverlap(t, m)
}

func TestAddClipDuplicateIDGetsFreshOne(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 1)
	c := addVideo(t, m, "A", 1, 1)
	assert.NotEqual(t, "A", c.ID)
	assert.Len(t, m.Clips(), 2)
}

func TestUpdateClip(t *testing.T) {
	m := newTestModel()
	_, err := m.AddClip(ClipInput{
		ID:        "T",
		MediaType: "text",
		Duration:  F(4),
		TextOverlay: &models.TextOverlay{
			Text:  "Title",
			Style: map[string]string{"color": "white", "font_size": "48"},
		},
	})
	require.NoError(t, err)

	name := "Lower third"
	err = m.UpdateClip("T", ClipUpdate{
		Name:             &name,
		Volume:           F(-5),
		TextOverlay:      &models.TextOverlay{Style: map[string]string{"color": "yellow"}},
		OverlayTransform: &models.OverlayTransform{X: 0.1, Y: 0.8, Width: 0.5, Height: 0.2},
	})
	require.NoError(t, err)

	c := mustClip(t, m, "T")
	assert.Equal(t, "Lower third", c.Name)
	assert.Equal(t, 0.0, c.Volume)
	assert.Equal(t, "Title", c.TextOverlay.Text)
	assert.Equal(t, "yellow", c.TextOverlay.Style["color"])
	assert.Equal(t, "48", c.TextOverlay.Style["font_size"])
	require.NotNil(t, c.OverlayTransform)
	assert.Equal(t, 0.8, c.OverlayTransform.Y)
}

func TestUpdateClipTimingKeepsInvariants(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)

	require.NoError(t, m.UpdateClip("A", ClipUpdate{Duration: F(7)}))

	a := mustClip(t, m, "A")
	assert.InDelta(t, 7.0, a.End, 1e-9)
	assert.InDelta(t, 7.0, a.SourceOut, 1e-9)
	assert.InDelta(t, 7.0, a.EndTrim, 1e-9)
	assert.InDelta(t, 7.0, mustClip(t, m, "B").Start, 1e-9)
	assertNoOverlap(t, m)
}

func TestUpdateClipRejections(t *testing.T) {
	m := newTestModel()
	assert.ErrorIs(t, m.UpdateClip("ghost", ClipUpdate{}), ErrClipNotFound)
}

func TestTrimClipMovesSourceWindow(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 8)

	require.NoError(t, m.TrimClip("A", 1, 5))

	a := mustClip(t, m, "A")
	assert.InDelta(t, 1.0, a.Start, 1e-9)
	assert.InDelta(t, 5.0, a.End, 1e-9)
	assert.InDelta(t, 4.0, a.Duration, 1e-9)
	assert.InDelta(t, 1.0, a.SourceIn, 1e-9)
	assert.InDelta(t, 5.0, a.SourceOut, 1e-9)
}

func TestTrimClipRipplesLaterClips(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	addVideo(t, m, "C", 10, 2)

	require.NoError(t, m.TrimClip("A", 0, 3))
	assert.InDelta(t, 3.0, mustClip(t, m, "B").Start, 1e-9)
	assert.InDelta(t, 8.0, mustClip(t, m, "C").Start, 1e-9)
	assert.InDelta(t, 5.0, mustClip(t, m, "B").Duration, 1e-9)

	// Growing the clip pushes its followers instead.
	require.NoError(t, m.TrimClip("A", 0, 6))
	assert.InDelta(t, 6.0, mustClip(t, m, "B").Start, 1e-9)
	assert.InDelta(t, 11.0, mustClip(t, m, "C").Start, 1e-9)
	assertNoOverlap(t, m)
}

func TestTrimClipLeavesEarlierClipsAlone(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 2)
	addVideo(t, m, "B", 4, 4)

	// The left edge cannot cross into A.
	require.NoError(t, m.TrimClip("B", 1, 8))
	a, b := mustClip(t, m, "A"), mustClip(t, m, "B")
	assert.Equal(t, 0.0, a.Start)
	assert.InDelta(t, 2.0, a.End, 1e-9)
	assert.InDelta(t, 2.0, b.Start, 1e-9)
	assert.InDelta(t, 8.0, b.End, 1e-9)
	assert.Equal(t, 0.0, b.SourceIn)
	assertNoOverlap(t, m)
}

func TestTrimClipClampsBounds(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 2, 4)

	require.NoError(t, m.TrimClip("A", -3, -10))
	a := mustClip(t, m, "A")
	assert.Equal(t, 0.0, a.Start)
	assert.InDelta(t, MinClipDuration, a.Duration, 1e-9)
}

func TestTrimClipLeftEdgeStopsAtNextClip(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "a", 0, 1)
	addVideo(t, m, "b", 1, 10)

	// Dragging a's left edge past b's start stops at b and pushes b out.
	require.NoError(t, m.TrimClip("a", 5, 6))

	a, b := mustClip(t, m, "a"), mustClip(t, m, "b")
	assert.InDelta(t, 1.0, a.Start, 1e-9)
	assert.InDelta(t, 6.0, a.End, 1e-9)
	assert.InDelta(t, 1.0, a.SourceIn, 1e-9)
	assert.InDelta(t, 6.0, b.Start, 1e-9)
	assert.InDelta(t, 16.0, b.End, 1e-9)
	assert.InDelta(t, 10.0, b.Duration, 1e-9)

	clips := m.TrackClips("video-1")
	require.Len(t, clips, 2)
	assert.Equal(t, "a", clips[0].ID)
	assert.Equal(t, "b", clips[1].ID)
	assertNoOverlap(t, m)
}

func TestSplitClipAtPlayhead(t *testing.T) {
	m := newTestModel()
	_, err := m.AddClip(ClipInput{ID: "A", TrackID: "video-1", Duration: F(10), SourceIn: F(2)})
	require.NoError(t, err)
	addVideo(t, m, "B", 10, 5)
	_, err = m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)

	m.SetPlayhead(4)
	require.NoError(t, m.SplitClipAtPlayhead("A"))

	clips := m.TrackClips("video-1")
	require.Len(t, clips, 3)
	left, right := clips[0], clips[1]

	assert.Equal(t, "A", left.ID)
	assert.InDelta(t, 4.0, left.End, 1e-9)
	assert.InDelta(t, 2.0, left.SourceIn, 1e-9)
	assert.InDelta(t, 6.0, left.SourceOut, 1e-9)

	assert.NotEqual(t, "A", right.ID)
	assert.InDelta(t, 4.0, right.Start, 1e-9)
	assert.InDelta(t, 10.0, right.End, 1e-9)
	assert.InDelta(t, 6.0, right.SourceIn, 1e-9)
	assert.InDelta(t, 12.0, right.SourceOut, 1e-9)
	assert.Equal(t, right.ID, m.SelectedClipID())

	assert.Empty(t, m.Transitions())
	assertNoOverlap(t, m)
}

func TestSplitClipKeepsIncomingTransition(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	_, err := m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)

	m.SetPlayhead(7)
	require.NoError(t, m.SplitClipAtPlayhead("B"))
	_, ok := m.TransitionBetween("A", "B")
	assert.True(t, ok)
}

func TestSplitClipOutsidePlayhead(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)

	for _, p := range []float64{0, 5, 8} {
		m.SetPlayhead(p)
		assert.ErrorIs(t, m.SplitClipAtPlayhead("A"), ErrPlayheadOutsideClip)
	}
	assert.Len(t, m.Clips(), 1)
}

func TestRemoveClip(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	addVideo(t, m, "C", 10, 5)
	_, err := m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)
	_, err = m.SetTransitionBetween("B", "C", TransitionUpdate{})
	require.NoError(t, err)
	m.Select("B")

	require.NoError(t, m.RemoveClip("B"))

	_, ok := m.Clip("B")
	assert.False(t, ok)
	assert.Equal(t, "", m.SelectedClipID())
	assert.InDelta(t, 5.0, mustClip(t, m, "C").Start, 1e-9)
	assert.Empty(t, m.Transitions())
	assertNoOverlap(t, m)
}

func TestRemoveClipCollapsesGap(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 8, 2)

	require.NoError(t, m.RemoveClip("A"))
	assert.Equal(t, 0.0, mustClip(t, m, "B").Start)
}

func TestMoveClipToTrack(t *testing.T) {
	m := newTestModel()
	second := m.AddTrack(models.TrackTypeVideo, "Video 2")
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	_, err := m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)

	require.NoError(t, m.MoveClipToTrack("B", second.ID))
	b := mustClip(t, m, "B")
	assert.Equal(t, second.ID, b.TrackID)
	assert.Equal(t, 5.0, b.Start)
	assert.Empty(t, m.Transitions())

	assert.ErrorIs(t, m.MoveClipToTrack("A", "missing"), ErrTrackNotFound)

	_, err = m.SetTrackLocked(second.ID, true)
	require.NoError(t, err)
	assert.ErrorIs(t, m.MoveClipToTrack("A", second.ID), ErrTrackLocked)
	assert.Equal(t, "video-1", mustClip(t, m, "A").TrackID)
}

func TestMoveClipResolvesOverlapOnDestination(t *testing.T) {
	m := newTestModel()
	second := m.AddTrack(models.TrackTypeVideo, "Video 2")
	_, err := m.AddClip(ClipInput{ID: "C", TrackID: second.ID, Duration: F(5)})
	require.NoError(t, err)
	addVideo(t, m, "A", 2, 3)

	require.NoError(t, m.MoveClipToTrack("A", second.ID))
	assert.InDelta(t, 5.0, mustClip(t, m, "A").Start, 1e-9)
	assertNoOverlap(t, m)
}

func TestReorderClips(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 1)
	addVideo(t, m, "B", 1, 1)
	_, err := m.AddClip(ClipInput{ID: "X", MediaType: "audio", Duration: F(1)})
	require.NoError(t, err)
	addVideo(t, m, "C", 2, 1)

	require.NoError(t, m.ReorderClips("C", 0, ""))

	var order []string
	for _, c := range m.Clips() {
		order = append(order, c.ID)
	}
	assert.Equal(t, []string{"C", "A", "X", "B"}, order)

	// Timing is untouched.
	assert.InDelta(t, 2.0, mustClip(t, m, "C").Start, 1e-9)

	assert.ErrorIs(t, m.ReorderClips("C", 3, ""), ErrInvalidPosition)
	assert.ErrorIs(t, m.ReorderClips("C", 0, "audio-1"), ErrNotOnSameTrack)
}

func TestLockedTrackIsImmutable(t *testing.T) {
	m := newTestModel()
	second := m.AddTrack(models.TrackTypeVideo, "Video 2")
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	tr, err := m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)
	_, err = m.SetTrackLocked("video-1", true)
	require.NoError(t, err)

	clipsBefore := m.Clips()
	transitionsBefore := m.Transitions()
	m.SetPlayhead(2)

	name := "renamed"
	dur := 3.0
	mutations := map[string]error{
		"update":            m.UpdateClip("A", ClipUpdate{Name: &name}),
		"trim":              m.TrimClip("A", 0, 2),
		"split":             m.SplitClipAtPlayhead("A"),
		"remove":            m.RemoveClip("A"),
		"move":              m.MoveClipToTrack("A", second.ID),
		"reorder":           m.ReorderClips("B", 0, ""),
		"remove transition": m.RemoveTransition(tr.ID),
		"remove between":    m.RemoveTransitionBetween("A", "B"),
	}
	_, mutations["set transition"] = m.SetTransitionBetween("A", "B", TransitionUpdate{Duration: &dur})
	_, mutations["update transition"] = m.UpdateTransition(tr.ID, TransitionUpdate{Duration: &dur})

	for name, err := range mutations {
		assert.ErrorIs(t, err, ErrTrackLocked, name)
	}
	assert.Equal(t, clipsBefore, m.Clips())
	assert.Equal(t, transitionsBefore, m.Transitions())
}

func TestTrimPreservesAdjacentTransition(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)

	d := 2.0
	crossfade := models.TransitionCrossfade
	_, err := m.SetTransitionBetween("A", "B", TransitionUpdate{Type: &crossfade, Duration: &d})
	require.NoError(t, err)

	require.NoError(t, m.TrimClip("A", 0, 3))

	b := mustClip(t, m, "B")
	assert.InDelta(t, 3.0, b.Start, 1e-9)

	tr, ok := m.TransitionBetween("A", "B")
	require.True(t, ok)
	assert.Equal(t, models.TransitionCrossfade, tr.Type)
	assert.InDelta(t, 2.0, tr.Duration, 1e-9)

	// Shrinking A below the transition clamps it to A's new length.
	require.NoError(t, m.TrimClip("A", 0, 1.5))
	tr, ok = m.TransitionBetween("A", "B")
	require.True(t, ok)
	assert.InDelta(t, 1.5, tr.Duration, 1e-9)
	assertNoOverlap(t, m)
}

func TestTransitionSurvivesUnrelatedEdits(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	_, err := m.AddClip(ClipInput{ID: "M", MediaType: "audio", Duration: F(4)})
	require.NoError(t, err)
	_, err = m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)

	require.NoError(t, m.TrimClip("M", 0, 2))
	_, ok := m.TransitionBetween("A", "B")
	assert.True(t, ok)

	// A clip inserted between A and B breaks their adjacency.
	addVideo(t, m, "X", 5, 1)
	_, ok = m.TransitionBetween("A", "B")
	assert.False(t, ok)
	assert.InDelta(t, 6.0, mustClip(t, m, "B").Start, 1e-9)
	assertNoOverlap(t, m)
}
