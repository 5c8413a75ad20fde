package timeline

import (
	"math"
	"sort"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

type clipPair struct {
	from, to string
}

// SortByStart orders clips by start time. Ties keep their relative input
// order, so storage order decides between clips that start together.
func SortByStart(clips []models.Clip) []models.Clip {
	out := append([]models.Clip(nil), clips...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// adjacency returns every (clip_i -> clip_i+1) pair in per-track start
// order. Adjacency is positional: a gap between the two clips does not
// break it, a clip between them does.
func adjacency(clips []models.Clip) map[clipPair]bool {
	byTrack := make(map[string][]models.Clip)
	for _, c := range clips {
		byTrack[c.TrackID] = append(byTrack[c.TrackID], c)
	}

	pairs := make(map[clipPair]bool)
	for _, group := range byTrack {
		sorted := SortByStart(group)
		for i := 0; i+1 < len(sorted); i++ {
			pairs[clipPair{from: sorted[i].ID, to: sorted[i+1].ID}] = true
		}
	}
	return pairs
}

// Adjacent reports whether to immediately follows from on the same track.
func Adjacent(clips []models.Clip, fromID, toID string) bool {
	return adjacency(clips)[clipPair{from: fromID, to: toID}]
}

// MaxTransitionDuration is the longest transition two clips can carry:
// the shorter clip's duration, capped at TransitionMaxDuration.
func MaxTransitionDuration(from, to models.Clip) float64 {
	return math.Min(models.TransitionMaxDuration, math.Min(from.Duration, to.Duration))
}

// ClampTransitionDuration bounds d into [TransitionMinDuration, budget].
// ok is false when the clips are too short to carry any transition.
func ClampTransitionDuration(d float64, from, to models.Clip) (float64, bool) {
	budget := MaxTransitionDuration(from, to)
	if budget < models.TransitionMinDuration {
		return 0, false
	}
	if d <= 0 || math.IsNaN(d) {
		d = models.TransitionDefaultDuration
	}
	return models.Clamp(d, models.TransitionMinDuration, budget), true
}

// Sanitize keeps the transitions whose clips both exist, share a track and
// are adjacent in that track's start order, and normalizes what it keeps:
// unknown type/easing fall back to defaults and duration is clamped to the
// clips' budget. Dropped transitions are not repaired. The inputs are not
// modified.
func Sanitize(transitions []models.Transition, clips []models.Clip) []models.Transition {
	byID := make(map[string]models.Clip, len(clips))
	for _, c := range clips {
		byID[c.ID] = c
	}
	pairs := adjacency(clips)

	out := make([]models.Transition, 0, len(transitions))
	seen := make(map[clipPair]bool, len(transitions))
	for _, t := range transitions {
		from, okFrom := byID[t.FromClipID]
		to, okTo := byID[t.ToClipID]
		if !okFrom || !okTo {
			continue
		}
		if from.TrackID != to.TrackID {
			continue
		}
		pair := clipPair{from: from.ID, to: to.ID}
		if !pairs[pair] || seen[pair] {
			continue
		}

		duration, ok := ClampTransitionDuration(t.Duration, from, to)
		if !ok {
			continue
		}

		kept := t
		kept.TrackID = from.TrackID
		kept.Duration = duration
		if !kept.Type.Valid() {
			kept.Type = models.TransitionDefaultType
		}
		if !kept.Easing.Valid() {
			kept.Easing = models.TransitionDefaultEasing
		}
		seen[pair] = true
		out = append(out, kept)
	}
	return out
}
