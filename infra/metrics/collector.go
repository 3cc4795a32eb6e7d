package metrics

import (
	"context"
	"time"

	"github.com/dispatchlab/fieldops/core/events"
	coremetrics "github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// location and notice events. Run and adaptation events are recorded directly
// by the scheduling service. The collector stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.RunSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.LocationEvent:
					if r, ok := sink.(coremetrics.LocationRecorder); ok {
						_ = r.RecordLocationUpdate(coremetrics.LocationEvent{
							TenantID:     e.Ping.TenantID,
							TechnicianID: e.Ping.TechnicianID,
							Position:     e.Ping.Position,
							Status:       e.Ping.Status,
							Time:         e.Ping.At,
						})
					}
				case events.NoticeEvent:
					if r, ok := sink.(coremetrics.NoticeRecorder); ok {
						_ = r.RecordNotice(coremetrics.NoticeEvent{
							TenantID:     e.TenantID,
							TechnicianID: e.TechnicianID,
							DisruptionID: e.DisruptionID,
							Delivered:    e.Delivered,
							Attempts:     e.Attempts,
							Time:         time.Now(),
						})
					}
				}
			}
		}
	}()
}
