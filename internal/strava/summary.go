package strava

// Bucket is a tracked activity-type group in the athlete stats.
type Bucket string

const (
	BucketRun  Bucket = "run"
	BucketRide Bucket = "ride"
	BucketSwim Bucket = "swim"
)

// Window is a summary aggregation period.
type Window string

const (
	WindowRecent Window = "recent"
	WindowYTD    Window = "ytd"
	WindowAll    Window = "all"
)

var (
	Buckets = []Bucket{BucketRun, BucketRide, BucketSwim}
	Windows = []Window{WindowRecent, WindowYTD, WindowAll}
)

// Totals are the aggregate figures for one bucket and window. The biggest-*
// extrema are only populated in the all-time window.
type Totals struct {
	Count                     int64   `json:"count"`
	Distance                  float64 `json:"distance"`
	MovingTime                int64   `json:"moving_time"`
	ElapsedTime               int64   `json:"elapsed_time"`
	ElevationGain             float64 `json:"elevation_gain"`
	AchievementCount          int64   `json:"achievement_count"`
	BiggestRideDistance       float64 `json:"biggest_ride_distance"`
	BiggestClimbElevationGain float64 `json:"biggest_climb_elevation_gain"`
}

// Summary is keyed by bucket then window; every key is always present.
type Summary map[Bucket]map[Window]Totals

// Totals returns the raw bucket for a window, nil when the remote omitted it.
func (s *AthleteStats) Totals(b Bucket, w Window) *ActivityTotal {
	if s == nil {
		return nil
	}
	switch w {
	case WindowRecent:
		switch b {
		case BucketRun:
			return s.RecentRunTotals
		case BucketRide:
			return s.RecentRideTotals
		case BucketSwim:
			return s.RecentSwimTotals
		}
	case WindowYTD:
		switch b {
		case BucketRun:
			return s.YTDRunTotals
		case BucketRide:
			return s.YTDRideTotals
		case BucketSwim:
			return s.YTDSwimTotals
		}
	case WindowAll:
		switch b {
		case BucketRun:
			return s.AllRunTotals
		case BucketRide:
			return s.AllRideTotals
		case BucketSwim:
			return s.AllSwimTotals
		}
	}
	return nil
}
