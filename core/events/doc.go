// Package events defines the scheduling events emitted on the event bus.
//
// Available event types:
//   - RunEvent: optimization run reached a terminal status
//   - AdaptationEvent: disruption finished the adaptation pipeline
//   - LocationEvent: technician position report accepted
//   - NoticeEvent: schedule-change notice delivery attempt
package events
