package events

import "github.com/dispatchlab/fieldops/core/model"

// LocationEvent is published for each accepted technician position report.
type LocationEvent struct {
	Ping model.LocationPing
}
