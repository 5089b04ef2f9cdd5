package storage

import "time"

// BuildRow is a lightweight listing row for /builds.
type BuildRow struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source,omitempty"`
	IRVersion string    `json:"ir_version,omitempty"`
	Pages     int       `json:"pages"`
	Bundles   int       `json:"bundles"`
	Rules     int       `json:"rules"`
}
