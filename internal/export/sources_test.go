package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

func TestResolveSourcePriority(t *testing.T) {
	lib := timeline.NewMediaLibrary()
	lib.Add(models.MediaFile{ID: "mem"}, timeline.BytesHandle("abc"))

	media := map[string]models.MediaFile{
		"mem":      {ID: "mem", Path: "/never.mp4"},
		"recorded": {ID: "recorded", RecordedBasePath: "/rec/base.webm", BlobURL: "blob:r", Path: "/r.mp4"},
		"blob":     {ID: "blob", BlobURL: "blob:media", Path: "/b.mp4"},
		"file":     {ID: "file", Path: "/f.mp4"},
		"empty":    {ID: "empty"},
	}
	blobs := map[string]string{"override": "blob:job"}
	media["override"] = models.MediaFile{ID: "override", BlobURL: "blob:media", Path: "/o.mp4"}

	tests := []struct {
		name string
		clip models.Clip
		want models.MediaSource
		ok   bool
	}{
		{"in memory handle", models.Clip{MediaFileID: "mem"}, models.MediaSource{Kind: models.SourceInMemory}, true},
		{"recorded base path", models.Clip{MediaFileID: "recorded"}, models.MediaSource{Kind: models.SourceRecordedBase, Path: "/rec/base.webm"}, true},
		{"clip recording meta", models.Clip{MediaFileID: "file", RecordingMeta: &models.RecordingMeta{BasePath: "/rec/clip.webm"}},
			models.MediaSource{Kind: models.SourceRecordedBase, Path: "/rec/clip.webm"}, true},
		{"job blob over media blob", models.Clip{MediaFileID: "override"}, models.MediaSource{Kind: models.SourceBlob, URL: "blob:job"}, true},
		{"media blob", models.Clip{MediaFileID: "blob"}, models.MediaSource{Kind: models.SourceBlob, URL: "blob:media"}, true},
		{"filesystem", models.Clip{MediaFileID: "file"}, models.MediaSource{Kind: models.SourceFilesystem, Path: "/f.mp4"}, true},
		{"text only", models.Clip{TextOverlay: &models.TextOverlay{Text: "Title"}}, models.MediaSource{Kind: models.SourceText}, true},
		{"unresolvable media", models.Clip{MediaFileID: "empty"}, models.MediaSource{}, false},
		{"unknown media", models.Clip{MediaFileID: "missing"}, models.MediaSource{}, false},
		{"empty text", models.Clip{TextOverlay: &models.TextOverlay{}}, models.MediaSource{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveSource(tt.clip, media, blobs, lib)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Equal(t, tt.want.Path, got.Path)
			assert.Equal(t, tt.want.URL, got.URL)
			if tt.want.Kind == models.SourceInMemory {
				assert.NotNil(t, got.Handle)
			}
		})
	}
}

func TestResolveClipData(t *testing.T) {
	clip := func(id, track string, start, dur float64) models.Clip {
		return models.Clip{
			ID: id, TrackID: track, MediaFileID: "m", MediaType: models.TrackTypeVideo,
			Start: start, End: start + dur, Duration: dur, SourceOut: dur, EndTrim: dur, Volume: 50,
		}
	}
	job := &models.ExportJob{
		TimelineSnapshot: []models.Clip{
			clip("B", "video-1", 4, 4),
			clip("A", "video-1", 0, 4),
			clip("music", "audio-1", 0, 8),
			clip("ghost", "video-1", 8, 2),
		},
		TrackSnapshot: []models.Track{
			{ID: "video-1", Type: models.TrackTypeVideo, IsVisible: true, Volume: 100},
			{ID: "audio-1", Type: models.TrackTypeAudio, IsVisible: false, Volume: 80, IsMuted: true},
		},
		TransitionSnapshot: []models.Transition{
			{ID: "t1", FromClipID: "A", ToClipID: "B", Type: "bogus", Duration: 30},
			{ID: "t2", FromClipID: "A", ToClipID: "music", Duration: 1},
		},
		MediaSnapshot: []models.MediaFile{{ID: "m", Path: "/m.mp4"}},
	}
	job.TimelineSnapshot[3].MediaFileID = "gone"

	data, dropped := resolveClipData(job, nil)
	assert.Equal(t, []string{"ghost"}, dropped)
	require.Len(t, data, 3)

	byID := make(map[string]models.ClipData)
	var order []string
	for _, d := range data {
		byID[d.ClipID] = d
		order = append(order, d.ClipID)
	}
	assert.Equal(t, "A", order[0])
	assert.Equal(t, "B", order[2])

	a := byID["A"]
	assert.InDelta(t, 0.5, a.VolumeScalar, 1e-9)
	assert.True(t, a.Visible)
	require.NotNil(t, a.TransitionOut)
	assert.Equal(t, "t1", a.TransitionOut.ID)
	assert.Equal(t, models.TransitionDefaultType, a.TransitionOut.Type)
	assert.Equal(t, 4.0, a.TransitionOut.Duration)
	assert.Nil(t, byID["B"].TransitionOut)

	music := byID["music"]
	assert.Equal(t, 0.0, music.VolumeScalar)
	assert.False(t, music.Visible)
}

func TestResolveClipDataSolo(t *testing.T) {
	job := &models.ExportJob{
		TimelineSnapshot: []models.Clip{
			{ID: "v", TrackID: "video-1", MediaFileID: "m", Duration: 2, End: 2, Volume: 100},
			{ID: "a", TrackID: "audio-1", MediaFileID: "m", Duration: 2, End: 2, Volume: 100},
			{ID: "loose", TrackID: "", MediaFileID: "m", Duration: 2, End: 2, Volume: 100},
		},
		TrackSnapshot: []models.Track{
			{ID: "video-1", IsVisible: true, Volume: 100},
			{ID: "audio-1", IsVisible: true, Volume: 60, IsSolo: true},
		},
		MediaSnapshot: []models.MediaFile{{ID: "m", Path: "/m.mp4"}},
	}

	data, dropped := resolveClipData(job, nil)
	assert.Empty(t, dropped)
	gains := make(map[string]float64)
	for _, d := range data {
		gains[d.ClipID] = d.VolumeScalar
	}
	assert.Equal(t, 0.0, gains["v"])
	assert.InDelta(t, 0.6, gains["a"], 1e-9)
	assert.Equal(t, 1.0, gains["loose"], "clips without a known track keep their own volume")
}
