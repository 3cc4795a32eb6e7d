package events

import "github.com/dispatchlab/fieldops/core/model"

// AdaptationEvent is published when a disruption finishes the adaptation
// pipeline, whether applied or rejected.
type AdaptationEvent struct {
	Event         model.DisruptionEvent
	State         model.DisruptionState
	Impact        float64
	Reassignments int
	Affected      []string // ids of jobs whose assignment changed
}
