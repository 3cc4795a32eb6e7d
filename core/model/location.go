package model

import (
	"fmt"
	"time"
)

// LocationPing is a single position report from a technician's device.
type LocationPing struct {
	TechnicianID string    `json:"technician_id"`
	TenantID     string    `json:"tenant_id"`
	Position     LatLng    `json:"position"`
	Status       string    `json:"status,omitempty"` // free-form device status, e.g. "en_route"
	At           time.Time `json:"at"`
}

// Validate checks that the ping is complete.
func (p LocationPing) Validate() error {
	if p.TechnicianID == "" {
		return fmt.Errorf("location ping: technician id is required")
	}
	if err := p.Position.Validate(); err != nil {
		return fmt.Errorf("location ping for %s: %w", p.TechnicianID, err)
	}
	if p.At.IsZero() {
		return fmt.Errorf("location ping for %s: timestamp is required", p.TechnicianID)
	}
	return nil
}

// StaleAt reports whether the ping is older than maxAge at the given instant.
func (p LocationPing) StaleAt(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.At) > maxAge
}
