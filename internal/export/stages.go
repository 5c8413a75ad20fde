package export

import (
	"math"
	"time"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

type stageWeight struct {
	stage  models.Stage
	weight int
}

// Stages run in this order and their weights sum to 100.
var stageWeights = []stageWeight{
	{models.StagePreparing, 5},
	{models.StageMerging, 40},
	{models.StageEncoding, 40},
	{models.StageSaving, 10},
	{models.StageValidating, 5},
}

// Stages returns the execution stages in order.
func Stages() []models.Stage {
	out := make([]models.Stage, len(stageWeights))
	for i, sw := range stageWeights {
		out[i] = sw.stage
	}
	return out
}

// StageWeight returns a stage's share of overall progress, 0 for
// non-execution stages.
func StageWeight(stage models.Stage) int {
	for _, sw := range stageWeights {
		if sw.stage == stage {
			return sw.weight
		}
	}
	return 0
}

// StageOffset is the summed weight of every stage before this one.
func StageOffset(stage models.Stage) int {
	offset := 0
	for _, sw := range stageWeights {
		if sw.stage == stage {
			return offset
		}
		offset += sw.weight
	}
	return offset
}

// OverallPercent maps a stage-local 0..1 fraction onto the 0..100 scale.
func OverallPercent(stage models.Stage, fraction float64) int {
	f := models.Clamp(fraction, 0, 1)
	if math.IsNaN(f) {
		f = 0
	}
	p := float64(StageOffset(stage)) + f*float64(StageWeight(stage))
	return int(math.Floor(p + 1e-9))
}

// EstimateETA projects the remaining seconds from elapsed time and
// percent done. It is nil before any progress and 0 at completion.
func EstimateETA(elapsed time.Duration, percent int) *float64 {
	var eta float64
	switch {
	case percent <= 0:
		return nil
	case percent >= 100:
		eta = 0
	default:
		eta = elapsed.Seconds() * (100/float64(percent) - 1)
	}
	return &eta
}
