package domain

import "time"

// Campaign is a cluster of related reports inferred by the correlator.
// Campaigns are derived data: they are recomputed on every correlation pass
// and never treated as ground truth.
type Campaign struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ReportIDs   []string `json:"report_ids"`

	Severity   Severity  `json:"severity"`   // max severity across member reports
	Confidence int       `json:"confidence"` // [0, 100]
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`

	ThreatActors  []string `json:"threat_actors,omitempty"`
	Techniques    []string `json:"techniques,omitempty"`
	TargetSectors []string `json:"target_sectors,omitempty"`
}
