package graph

import (
	"math"

	"golang.org/x/sync/semaphore"

	"github.com/blazingsql/engine/pkg/engine/internal/kernel"
)

type laneType string

const (
	laneScan  laneType = "scan"
	laneOther laneType = "other"
)

type admissionLane struct {
	*semaphore.Weighted
	capacity int64
	lane     laneType
}

func newAdmissionLane(lane laneType, capacity int64) *admissionLane {
	return &admissionLane{
		Weighted: semaphore.NewWeighted(capacity),
		capacity: capacity,
		lane:     lane,
	}
}

// admissionControl maps kernels to the lane they must be admitted through
// before running. Only scans are limited: every other kernel of a graph must
// run concurrently for records to flow.
type admissionControl struct {
	mapping map[laneType]*admissionLane
}

func newAdmissionControl(maxScans int64) *admissionControl {
	if maxScans < 1 {
		maxScans = math.MaxInt64
	}

	return &admissionControl{
		mapping: map[laneType]*admissionLane{
			laneScan:  newAdmissionLane(laneScan, maxScans),
			laneOther: newAdmissionLane(laneOther, math.MaxInt64),
		},
	}
}

func (ac *admissionControl) typeFor(k kernel.Kernel) laneType {
	if k.Kind().IsScan() {
		return laneScan
	}
	return laneOther
}

func (ac *admissionControl) laneFor(k kernel.Kernel) *admissionLane {
	return ac.mapping[ac.typeFor(k)]
}

// limited reports whether the lane can hold back kernels.
func (l *admissionLane) limited() bool { return l.capacity < math.MaxInt64 }
