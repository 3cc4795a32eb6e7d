package events

// NoticeEvent is published for each schedule-change notice delivery attempt.
type NoticeEvent struct {
	TenantID     string
	TechnicianID string
	DisruptionID string
	Delivered    bool
	Attempts     int
}
