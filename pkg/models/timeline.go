package models

import (
	"strings"
	"time"
)

// TrackType identifies the media category a track (and its clips) carries.
type TrackType string

// TrackType constants
const (
	TrackTypeVideo   TrackType = "video"
	TrackTypeAudio   TrackType = "audio"
	TrackTypeOverlay TrackType = "overlay"
)

// NormalizeTrackType maps a free-form media hint onto a TrackType by
// substring match. Anything that is neither audio nor overlay/text is video.
func NormalizeTrackType(hint string) TrackType {
	h := strings.ToLower(hint)
	switch {
	case strings.Contains(h, "audio"):
		return TrackTypeAudio
	case strings.Contains(h, "overlay"), strings.Contains(h, "text"):
		return TrackTypeOverlay
	default:
		return TrackTypeVideo
	}
}

// Track limits
const (
	TrackVolumeMin = 0
	TrackVolumeMax = 100
	TrackHeightMin = 0.5
	TrackHeightMax = 3
)

// Track is a lane of non-overlapping clips of one media category.
type Track struct {
	ID        string    `json:"id"`
	Type      TrackType `json:"type"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	IsVisible bool      `json:"is_visible"`
	IsLocked  bool      `json:"is_locked"`
	IsMuted   bool      `json:"is_muted"`
	IsSolo    bool      `json:"is_solo"`
	Volume    float64   `json:"volume"`
	Height    float64   `json:"height"`
}

// Normalize clamps volume and height into their allowed ranges and fills
// in a name when missing.
func (t *Track) Normalize() {
	t.Volume = Clamp(t.Volume, TrackVolumeMin, TrackVolumeMax)
	if t.Height == 0 {
		t.Height = 1
	}
	t.Height = Clamp(t.Height, TrackHeightMin, TrackHeightMax)
	if t.Type == "" {
		t.Type = TrackTypeVideo
	}
	if strings.TrimSpace(t.Name) == "" {
		t.Name = strings.ToUpper(string(t.Type[:1])) + string(t.Type[1:])
	}
}

// Clip volume limits, in percent (100 = unity).
const (
	ClipVolumeMin     = 0
	ClipVolumeMax     = 200
	ClipVolumeDefault = 100
)

// OverlayTransform positions a picture-in-picture clip on the canvas.
// X, Y, Width and Height are fractions of the output canvas (0..1).
type OverlayTransform struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	CornerRadius float64 `json:"corner_radius"`
}

// Keyframe is one point of a property animation, relative to clip start.
type Keyframe struct {
	Time     float64 `json:"time"`
	Property string  `json:"property"`
	Value    float64 `json:"value"`
	Easing   Easing  `json:"easing,omitempty"`
}

// TextAnimation describes how a text overlay animates over its clip.
type TextAnimation struct {
	Preset    string     `json:"preset,omitempty"`
	Keyframes []Keyframe `json:"keyframes,omitempty"`
}

// TextPosition anchors a text overlay, as canvas fractions.
type TextPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextOverlay is a styled caption rendered over the clip window.
type TextOverlay struct {
	Text      string            `json:"text"`
	Style     map[string]string `json:"style,omitempty"`
	Position  *TextPosition     `json:"position,omitempty"`
	Animation *TextAnimation    `json:"animation,omitempty"`
}

// RecordingMeta records the provenance of a clip captured in-app.
type RecordingMeta struct {
	Source     string    `json:"source"`
	DeviceName string    `json:"device_name,omitempty"`
	BasePath   string    `json:"base_path,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Waveform holds precomputed peaks for audio visualization.
type Waveform struct {
	Peaks            []float64 `json:"peaks"`
	SamplesPerSecond int       `json:"samples_per_second"`
}

// Clip places a window [SourceIn, SourceOut) of a media asset onto a track
// at [Start, End) in timeline seconds.
type Clip struct {
	ID               string            `json:"id"`
	TrackID          string            `json:"track_id"`
	MediaFileID      string            `json:"media_file_id"`
	MediaType        TrackType         `json:"media_type"`
	Name             string            `json:"name"`
	Start            float64           `json:"start"`
	End              float64           `json:"end"`
	Duration         float64           `json:"duration"`
	SourceIn         float64           `json:"source_in"`
	SourceOut        float64           `json:"source_out"`
	StartTrim        float64           `json:"start_trim"`
	EndTrim          float64           `json:"end_trim"`
	Volume           float64           `json:"volume"`
	OverlayTransform *OverlayTransform `json:"overlay_transform,omitempty"`
	TextOverlay      *TextOverlay      `json:"text_overlay,omitempty"`
	RecordingMeta    *RecordingMeta    `json:"recording_meta,omitempty"`
	Waveform         *Waveform         `json:"waveform,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Reconcile restores the timing invariants after a field-level edit:
// End = Start + Duration, SourceOut = SourceIn + Duration, the legacy trim
// markers mirror the source window and EndTrim stays inside [0, Duration].
func (c *Clip) Reconcile() {
	if c.Start < 0 {
		c.Start = 0
	}
	c.End = c.Start + c.Duration
	if c.SourceIn < 0 {
		c.SourceIn = 0
	}
	c.SourceOut = c.SourceIn + c.Duration
	c.StartTrim = c.SourceIn
	c.EndTrim = Clamp(c.EndTrim, 0, c.Duration)
	c.Volume = Clamp(c.Volume, ClipVolumeMin, ClipVolumeMax)
}

// Overlaps reports whether two clips share any part of [Start, End).
func (c Clip) Overlaps(o Clip) bool {
	return c.Start < o.End && o.Start < c.End
}

// Keyframes returns the animation keyframes carried by the clip's text
// overlay, if any.
func (c Clip) Keyframes() []Keyframe {
	if c.TextOverlay == nil || c.TextOverlay.Animation == nil {
		return nil
	}
	return append([]Keyframe(nil), c.TextOverlay.Animation.Keyframes...)
}

// TransitionType enumerates the supported blends.
type TransitionType string

// TransitionType constants
const (
	TransitionCrossfade  TransitionType = "crossfade"
	TransitionDipToBlack TransitionType = "dip-to-black"
	TransitionSlide      TransitionType = "slide"
)

// Valid reports whether t is a known transition type.
func (t TransitionType) Valid() bool {
	switch t {
	case TransitionCrossfade, TransitionDipToBlack, TransitionSlide:
		return true
	}
	return false
}

// Easing enumerates transition timing curves.
type Easing string

// Easing constants
const (
	EasingLinear    Easing = "linear"
	EasingEaseIn    Easing = "ease-in"
	EasingEaseOut   Easing = "ease-out"
	EasingEaseInOut Easing = "ease-in-out"
)

// Valid reports whether e is a known easing.
func (e Easing) Valid() bool {
	switch e {
	case EasingLinear, EasingEaseIn, EasingEaseOut, EasingEaseInOut:
		return true
	}
	return false
}

// Transition limits and defaults
const (
	TransitionMinDuration     = 0.1
	TransitionMaxDuration     = 10.0
	TransitionDefaultDuration = 1.0
	TransitionDefaultType     = TransitionCrossfade
	TransitionDefaultEasing   = EasingLinear
)

// Transition blends two clips that are adjacent on the same track.
type Transition struct {
	ID         string         `json:"id"`
	TrackID    string         `json:"track_id"`
	FromClipID string         `json:"from_clip_id"`
	ToClipID   string         `json:"to_clip_id"`
	Type       TransitionType `json:"type"`
	Easing     Easing         `json:"easing"`
	Duration   float64        `json:"duration"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
