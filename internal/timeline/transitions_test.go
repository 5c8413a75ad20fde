package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

func TestSetTransitionBetween(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 1.5)
	addVideo(t, m, "B", 1.5, 5)

	tr, err := m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, "video-1", tr.TrackID)
	assert.Equal(t, models.TransitionDefaultType, tr.Type)
	assert.Equal(t, models.TransitionDefaultEasing, tr.Easing)
	assert.Equal(t, models.TransitionDefaultDuration, tr.Duration)
	assert.Equal(t, testEpoch, tr.CreatedAt)

	// Setting again updates in place and clamps to the shorter clip.
	d := 4.0
	dip := models.TransitionDipToBlack
	again, err := m.SetTransitionBetween("A", "B", TransitionUpdate{Type: &dip, Duration: &d})
	require.NoError(t, err)
	assert.Equal(t, tr.ID, again.ID)
	assert.Equal(t, models.TransitionDipToBlack, again.Type)
	assert.Equal(t, 1.5, again.Duration)
	assert.Len(t, m.Transitions(), 1)
}

func TestSetTransitionBetweenRejections(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	addVideo(t, m, "C", 10, 5)
	_, err := m.AddClip(ClipInput{ID: "M", MediaType: "audio", Duration: F(5)})
	require.NoError(t, err)

	_, err = m.SetTransitionBetween("A", "C", TransitionUpdate{})
	assert.ErrorIs(t, err, ErrNotAdjacent)

	_, err = m.SetTransitionBetween("B", "A", TransitionUpdate{})
	assert.ErrorIs(t, err, ErrNotAdjacent)

	_, err = m.SetTransitionBetween("A", "M", TransitionUpdate{})
	assert.ErrorIs(t, err, ErrNotOnSameTrack)

	_, err = m.SetTransitionBetween("A", "ghost", TransitionUpdate{})
	assert.ErrorIs(t, err, ErrClipNotFound)

	assert.Empty(t, m.Transitions())
}

func TestSetTransitionBetweenUnknownTypeFallsBack(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)

	wipe := models.TransitionType("wipe")
	bounce := models.Easing("bounce")
	tr, err := m.SetTransitionBetween("A", "B", TransitionUpdate{Type: &wipe, Easing: &bounce})
	require.NoError(t, err)
	assert.Equal(t, models.TransitionCrossfade, tr.Type)
	assert.Equal(t, models.EasingLinear, tr.Easing)
}

func TestUpdateTransition(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	tr, err := m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)

	easeIn := models.EasingEaseIn
	d := 0.02
	got, err := m.UpdateTransition(tr.ID, TransitionUpdate{Easing: &easeIn, Duration: &d})
	require.NoError(t, err)
	assert.Equal(t, models.EasingEaseIn, got.Easing)
	assert.Equal(t, models.TransitionMinDuration, got.Duration)

	stored, ok := m.TransitionBetween("A", "B")
	require.True(t, ok)
	assert.Equal(t, got, stored)

	_, err = m.UpdateTransition("ghost", TransitionUpdate{})
	assert.ErrorIs(t, err, ErrTransitionNotFound)
}

func TestRemoveTransition(t *testing.T) {
	m := newTestModel()
	addVideo(t, m, "A", 0, 5)
	addVideo(t, m, "B", 5, 5)
	addVideo(t, m, "C", 10, 5)
	ab, err := m.SetTransitionBetween("A", "B", TransitionUpdate{})
	require.NoError(t, err)
	_, err = m.SetTransitionBetween("B", "C", TransitionUpdate{})
	require.NoError(t, err)

	require.NoError(t, m.RemoveTransition(ab.ID))
	assert.Len(t, m.Transitions(), 1)
	assert.ErrorIs(t, m.RemoveTransition(ab.ID), ErrTransitionNotFound)

	require.NoError(t, m.RemoveTransitionBetween("B", "C"))
	assert.Empty(t, m.Transitions())
	assert.ErrorIs(t, m.RemoveTransitionBetween("B", "C"), ErrTransitionNotFound)
}

// End to end: A{0,5} B{5,5}, crossfade of 2, trim A to (0,3).
func TestTimelineScenario(t *testing.T) {
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
	assert.InDelta(t, 8.0, b.End, 1e-9)

	transitions := m.Transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, "A", transitions[0].FromClipID)
	assert.Equal(t, "B", transitions[0].ToClipID)
	assert.InDelta(t, 2.0, transitions[0].Duration, 1e-9)
	assertNoOverlap(t, m)
}
