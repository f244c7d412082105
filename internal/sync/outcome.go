package sync

import (
	"time"

	"github.com/sstent/stravasync/internal/strava"
)

// Outcome is the complete result of one successful cycle. A failed cycle
// yields no Outcome at all.
type Outcome struct {
	CycleID      string            `json:"cycle_id"`
	AthleteID    int64             `json:"athlete_id"`
	Activities   []strava.Activity `json:"activities"`
	Summary      strava.Summary    `json:"summary"`
	Images       []strava.Image    `json:"images"`
	DistanceUnit string            `json:"distance_unit"`
	CompletedAt  time.Time         `json:"completed_at"`
}
