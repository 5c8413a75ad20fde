package timeline

import (
	"errors"
	"fmt"
	"strings"
)

// Rejection reasons. Every mutator returns nil when applied, or a
// *MutationRejected wrapping one of these.
var (
	ErrClipNotFound        = errors.New("clip not found")
	ErrTrackNotFound       = errors.New("track not found")
	ErrTrackLocked         = errors.New("track is locked")
	ErrTrackNotEmpty       = errors.New("track still holds clips")
	ErrNoUnlockedTrack     = errors.New("no unlocked track for media type")
	ErrInvalidTiming       = errors.New("clip has no usable duration")
	ErrPlayheadOutsideClip = errors.New("playhead is not inside clip")
	ErrNotOnSameTrack      = errors.New("clips are not on the same track")
	ErrNotAdjacent         = errors.New("clips are not adjacent")
	ErrTransitionNotFound  = errors.New("transition not found")
	ErrInvalidPosition     = errors.New("position out of range")
)

// MutationRejected reports a refused edit. Refusals are expected during
// interactive use and leave the model untouched.
type MutationRejected struct {
	Op     string
	Reason error
	IDs    map[string]string
}

func (e *MutationRejected) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s rejected: %v", e.Op, e.Reason)
	for _, k := range []string{"clip_id", "track_id", "transition_id", "from_clip_id", "to_clip_id"} {
		if v, ok := e.IDs[k]; ok {
			fmt.Fprintf(&b, " %s=%s", k, v)
		}
	}
	return b.String()
}

func (e *MutationRejected) Unwrap() error {
	return e.Reason
}

// IsRejected reports whether err is a model rejection.
func IsRejected(err error) bool {
	var mr *MutationRejected
	return errors.As(err, &mr)
}

// reject logs the refusal and builds the error returned to the caller.
func (m *Model) reject(op string, reason error, kv ...string) error {
	ids := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		ids[kv[i]] = kv[i+1]
	}
	m.logger.LogMutationRejected(op, reason.Error(), ids)
	return &MutationRejected{Op: op, Reason: reason, IDs: ids}
}
