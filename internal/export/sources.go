package export

import (
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// HandleSource looks up in-memory media handles when a job runs. Handles
// are never part of a snapshot. *timeline.MediaLibrary satisfies it.
type HandleSource interface {
	Handle(mediaFileID string) (models.MediaHandle, bool)
}

// resolveSource picks a clip's input: in-memory handle, then recorded
// base path, then blob URL, then filesystem path. Clips with no media but
// a text overlay render as text.
func resolveSource(c models.Clip, media map[string]models.MediaFile, blobs map[string]string, handles HandleSource) (models.MediaSource, bool) {
	if c.MediaFileID != "" {
		if handles != nil {
			if h, ok := handles.Handle(c.MediaFileID); ok && h != nil {
				return models.MediaSource{Kind: models.SourceInMemory, Handle: h}, true
			}
		}
		mf, known := media[c.MediaFileID]
		if known && mf.RecordedBasePath != "" {
			return models.MediaSource{Kind: models.SourceRecordedBase, Path: mf.RecordedBasePath}, true
		}
		if c.RecordingMeta != nil && c.RecordingMeta.BasePath != "" {
			return models.MediaSource{Kind: models.SourceRecordedBase, Path: c.RecordingMeta.BasePath}, true
		}
		if url := blobs[c.MediaFileID]; url != "" {
			return models.MediaSource{Kind: models.SourceBlob, URL: url}, true
		}
		if known && mf.BlobURL != "" {
			return models.MediaSource{Kind: models.SourceBlob, URL: mf.BlobURL}, true
		}
		if known && mf.Path != "" {
			return models.MediaSource{Kind: models.SourceFilesystem, Path: mf.Path}, true
		}
	}
	if c.TextOverlay != nil && c.TextOverlay.Text != "" {
		return models.MediaSource{Kind: models.SourceText}, true
	}
	return models.MediaSource{}, false
}

// resolveClipData flattens a job snapshot into the ordered merge input.
// It returns the ids of clips that were dropped for lack of media.
func resolveClipData(job *models.ExportJob, handles HandleSource) ([]models.ClipData, []string) {
	media := make(map[string]models.MediaFile, len(job.MediaSnapshot))
	for _, mf := range job.MediaSnapshot {
		media[mf.ID] = mf
	}
	tracks := make(map[string]models.Track, len(job.TrackSnapshot))
	solo := false
	for _, t := range job.TrackSnapshot {
		tracks[t.ID] = t
		solo = solo || t.IsSolo
	}
	outgoing := make(map[string]models.Transition, len(job.TransitionSnapshot))
	for _, t := range timeline.Sanitize(job.TransitionSnapshot, job.TimelineSnapshot) {
		outgoing[t.FromClipID] = t
	}

	var (
		out     []models.ClipData
		dropped []string
	)
	for _, c := range timeline.SortByStart(job.TimelineSnapshot) {
		src, ok := resolveSource(c, media, job.BlobURLs, handles)
		if !ok {
			dropped = append(dropped, c.ID)
			continue
		}

		visible, gain := true, 1.0
		if t, ok := tracks[c.TrackID]; ok {
			visible = t.IsVisible
			gain = t.Volume / 100
			if t.IsMuted || (solo && !t.IsSolo) {
				gain = 0
			}
		}

		cd := models.ClipData{
			ClipID:       c.ID,
			TrackID:      c.TrackID,
			MediaType:    c.MediaType,
			Name:         c.Name,
			Source:       src,
			Start:        c.Start,
			End:          c.End,
			Duration:     c.Duration,
			SourceIn:     c.SourceIn,
			SourceOut:    c.SourceOut,
			VolumeScalar: c.Volume / 100 * gain,
			Visible:      visible,
			Keyframes:    c.Keyframes(),
		}
		if c.OverlayTransform != nil {
			ot := *c.OverlayTransform
			cd.OverlayTransform = &ot
		}
		cd.TextOverlay = c.TextOverlay.Clone()
		if t, ok := outgoing[c.ID]; ok {
			t := t
			cd.TransitionOut = &t
		}
		out = append(out, cd)
	}
	return out, dropped
}
