package strava

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Wire types mirror the remote payloads. Optional fields decode leniently so
// one odd field never fails a whole record.

// OptFloat is a JSON number that may be absent, null or malformed.
type OptFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON accepts numbers and numeric strings; anything else leaves the
// value invalid without returning an error.
func (n *OptFloat) UnmarshalJSON(b []byte) error {
	*n = OptFloat{}
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*n = OptFloat{Value: v, Valid: true}
	return nil
}

// Or returns the value, or def when absent.
func (n OptFloat) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

// OptString is a JSON string that decodes to "" when null or not a string.
type OptString string

func (s *OptString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		*s = ""
		return nil
	}
	*s = OptString(v)
	return nil
}

// OptBool is a JSON boolean that also accepts "true"/"false" strings and
// decodes to false when malformed.
type OptBool bool

func (v *OptBool) UnmarshalJSON(b []byte) error {
	*v = false
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if parsed, err := strconv.ParseBool(s); err == nil {
		*v = OptBool(parsed)
	}
	return nil
}

// LatLng is a [lat, lng] pair; nil when absent or malformed.
type LatLng []float64

func (l *LatLng) UnmarshalJSON(b []byte) error {
	*l = nil
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil || len(pair) != 2 {
		return nil
	}
	*l = pair
	return nil
}

// Valid reports whether the pair holds a coordinate.
func (l LatLng) Valid() bool {
	return len(l) == 2
}

// Timestamp is an RFC 3339 time that decodes to the zero time when malformed.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed.UTC()
	}
	return nil
}

// MetaAthlete is the athlete reference embedded in activities.
type MetaAthlete struct {
	ID int64 `json:"id"`
}

// SummaryActivity is one element of the list-activities response.
type SummaryActivity struct {
	ID                 int64       `json:"id"`
	Name               OptString   `json:"name"`
	Type               OptString   `json:"type"`
	SportType          OptString   `json:"sport_type"`
	Athlete            MetaAthlete `json:"athlete"`
	StartDate          Timestamp   `json:"start_date"`
	Distance           OptFloat    `json:"distance"`
	MovingTime         OptFloat    `json:"moving_time"`
	ElapsedTime        OptFloat    `json:"elapsed_time"`
	TotalElevationGain OptFloat    `json:"total_elevation_gain"`
	Kilojoules         OptFloat    `json:"kilojoules"`
	AverageHeartrate   OptFloat    `json:"average_heartrate"`
	MaxHeartrate       OptFloat    `json:"max_heartrate"`
	AverageCadence     OptFloat    `json:"average_cadence"`
	AverageWatts       OptFloat    `json:"average_watts"`
	AchievementCount   OptFloat    `json:"achievement_count"`
	KudosCount         OptFloat    `json:"kudos_count"`
	LocationCity       OptString   `json:"location_city"`
	LocationState      OptString   `json:"location_state"`
	StartLatLng        LatLng      `json:"start_latlng"`
	EndLatLng          LatLng      `json:"end_latlng"`
	GearID             OptString   `json:"gear_id"`
	Commute            OptBool     `json:"commute"`
	Private            OptBool     `json:"private"`
}

// DetailedActivity carries the fields only returned by get-activity.
type DetailedActivity struct {
	Calories       OptFloat        `json:"calories"`
	Kilojoules     OptFloat        `json:"kilojoules"`
	DeviceName     OptString       `json:"device_name"`
	Gear           *Gear           `json:"gear"`
	SegmentEfforts []SegmentEffort `json:"segment_efforts"`
}

// Gear is the summary gear object of a detailed activity.
type Gear struct {
	ID   OptString `json:"id"`
	Name OptString `json:"name"`
}

// SegmentEffort is trimmed to the location data the resolver reads.
type SegmentEffort struct {
	Segment struct {
		City  OptString `json:"city"`
		State OptString `json:"state"`
	} `json:"segment"`
}

// ActivityTotal is one bucket of the athlete stats response.
type ActivityTotal struct {
	Count            OptFloat `json:"count"`
	Distance         OptFloat `json:"distance"`
	MovingTime       OptFloat `json:"moving_time"`
	ElapsedTime      OptFloat `json:"elapsed_time"`
	ElevationGain    OptFloat `json:"elevation_gain"`
	AchievementCount OptFloat `json:"achievement_count"`
}

// AthleteStats is the get-athlete-stats response. Absent buckets stay nil.
type AthleteStats struct {
	BiggestRideDistance       OptFloat       `json:"biggest_ride_distance"`
	BiggestClimbElevationGain OptFloat       `json:"biggest_climb_elevation_gain"`
	RecentRideTotals          *ActivityTotal `json:"recent_ride_totals"`
	RecentRunTotals           *ActivityTotal `json:"recent_run_totals"`
	RecentSwimTotals          *ActivityTotal `json:"recent_swim_totals"`
	YTDRideTotals             *ActivityTotal `json:"ytd_ride_totals"`
	YTDRunTotals              *ActivityTotal `json:"ytd_run_totals"`
	YTDSwimTotals             *ActivityTotal `json:"ytd_swim_totals"`
	AllRideTotals             *ActivityTotal `json:"all_ride_totals"`
	AllRunTotals              *ActivityTotal `json:"all_run_totals"`
	AllSwimTotals             *ActivityTotal `json:"all_swim_totals"`
}

// Photo is one element of the get-activity-photos response.
type Photo struct {
	UniqueID   string            `json:"unique_id"`
	URLs       map[string]string `json:"urls"`
	CreatedAt  Timestamp         `json:"created_at"`
	UploadedAt Timestamp         `json:"uploaded_at"`
}
