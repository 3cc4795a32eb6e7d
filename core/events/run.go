package events

import "github.com/dispatchlab/fieldops/core/model"

// RunEvent is published when an optimization run reaches a terminal status.
type RunEvent struct {
	Run        model.Run
	Confidence float64
	Degraded   bool
}
