package timeline

import (
	"math"
	"sort"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// trackClipsByStart returns live pointers to one track's clips in start
// order. When priorityID is set, that clip sorts first among clips with
// the same start.
func (m *Model) trackClipsByStart(trackID, priorityID string) []*models.Clip {
	var out []*models.Clip
	for _, c := range m.clips {
		if c.TrackID == trackID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID == priorityID && out[j].ID != priorityID
	})
	return out
}

// rippleCollapse packs a track from fromTime onward. Clips that lie wholly
// before fromTime are never touched; every later clip is moved to the
// cursor, keeping its own duration, so gaps and overlaps downstream of the
// edit close up. The pinned clip keeps its position unless it starts
// before the cursor.
func (m *Model) rippleCollapse(trackID string, fromTime float64, pinnedID string) {
	cursor := math.Max(0, fromTime)
	for _, c := range m.trackClipsByStart(trackID, pinnedID) {
		if c.ID == pinnedID {
			if c.Start < cursor {
				shiftTo(c, cursor)
			}
			cursor = math.Max(cursor, c.End)
			continue
		}
		if c.Start < fromTime && c.End <= cursor {
			continue
		}
		shiftTo(c, cursor)
		cursor = c.End
	}
}

// resolveOverlaps pushes clips later in time until no two clips on the
// track overlap. Gaps are preserved. priorityID wins start-time ties, so a
// clip dropped onto another's start lands in front of it.
func (m *Model) resolveOverlaps(trackID, priorityID string) {
	cursor := 0.0
	for _, c := range m.trackClipsByStart(trackID, priorityID) {
		if c.Start < cursor {
			shiftTo(c, cursor)
		}
		cursor = math.Max(cursor, c.End)
	}
}

// shiftTo moves a clip in timeline time without touching its source window.
func shiftTo(c *models.Clip, start float64) {
	c.Start = start
	c.End = start + c.Duration
}

// previousEnd is the latest end among the clips that start before the
// given clip on its track, or 0.
func (m *Model) previousEnd(target *models.Clip) float64 {
	end := 0.0
	for _, c := range m.clips {
		if c.ID == target.ID || c.TrackID != target.TrackID {
			continue
		}
		if c.Start < target.Start && c.End > end {
			end = c.End
		}
	}
	return end
}

// nextStart is the earliest start among the clips that start after the
// given clip on its track, or +Inf.
func (m *Model) nextStart(target *models.Clip) float64 {
	start := math.Inf(1)
	for _, c := range m.clips {
		if c.ID == target.ID || c.TrackID != target.TrackID {
			continue
		}
		if c.Start > target.Start && c.Start < start {
			start = c.Start
		}
	}
	return start
}
