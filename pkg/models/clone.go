package models

// Explicit deep copies. Job snapshots are built from these so that later
// edits to the live timeline never reach a queued job.

// Clone returns a deep copy of the track.
func (t Track) Clone() Track {
	return t
}

// Clone returns a deep copy of the clip.
func (c Clip) Clone() Clip {
	out := c
	if c.OverlayTransform != nil {
		ot := *c.OverlayTransform
		out.OverlayTransform = &ot
	}
	if c.TextOverlay != nil {
		out.TextOverlay = c.TextOverlay.Clone()
	}
	if c.RecordingMeta != nil {
		rm := *c.RecordingMeta
		out.RecordingMeta = &rm
	}
	if c.Waveform != nil {
		out.Waveform = &Waveform{
			Peaks:            append([]float64(nil), c.Waveform.Peaks...),
			SamplesPerSecond: c.Waveform.SamplesPerSecond,
		}
	}
	return out
}

// Clone returns a deep copy of the text overlay.
func (t *TextOverlay) Clone() *TextOverlay {
	if t == nil {
		return nil
	}
	out := &TextOverlay{Text: t.Text}
	if t.Style != nil {
		out.Style = make(map[string]string, len(t.Style))
		for k, v := range t.Style {
			out.Style[k] = v
		}
	}
	if t.Position != nil {
		p := *t.Position
		out.Position = &p
	}
	if t.Animation != nil {
		out.Animation = &TextAnimation{
			Preset:    t.Animation.Preset,
			Keyframes: append([]Keyframe(nil), t.Animation.Keyframes...),
		}
	}
	return out
}

// Clone returns a copy of the transition.
func (t Transition) Clone() Transition {
	return t
}

// Clone returns a copy of the media file reference. In-memory handles are
// not part of MediaFile and so are never snapshotted.
func (m MediaFile) Clone() MediaFile {
	return m
}

// CloneClips deep-copies a clip list.
func CloneClips(in []Clip) []Clip {
	if in == nil {
		return nil
	}
	out := make([]Clip, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

// CloneTracks copies a track list.
func CloneTracks(in []Track) []Track {
	if in == nil {
		return nil
	}
	out := make([]Track, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

// CloneTransitions copies a transition list.
func CloneTransitions(in []Transition) []Transition {
	if in == nil {
		return nil
	}
	out := make([]Transition, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

// CloneMediaFiles copies a media file list.
func CloneMediaFiles(in []MediaFile) []MediaFile {
	if in == nil {
		return nil
	}
	out := make([]MediaFile, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// CloneStringMap copies a string map.
func CloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the job, including its snapshots.
func (j *ExportJob) Clone() *ExportJob {
	if j == nil {
		return nil
	}
	out := *j
	if j.ETASeconds != nil {
		eta := *j.ETASeconds
		out.ETASeconds = &eta
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	out.TimelineSnapshot = CloneClips(j.TimelineSnapshot)
	out.TrackSnapshot = CloneTracks(j.TrackSnapshot)
	out.TransitionSnapshot = CloneTransitions(j.TransitionSnapshot)
	out.MediaSnapshot = CloneMediaFiles(j.MediaSnapshot)
	out.BlobURLs = CloneStringMap(j.BlobURLs)
	out.Logs = append([]JobLogEntry(nil), j.Logs...)
	if j.Result != nil {
		r := *j.Result
		r.Logs = append([]JobLogEntry(nil), j.Result.Logs...)
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return &out
}
