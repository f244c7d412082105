package strava

import (
	"strings"
	"time"
)

// Sentinel marks a numeric field the remote did not supply.
const Sentinel = -1

// KilojoulesToKcal converts mechanical work in kJ to kcal.
const KilojoulesToKcal = 0.239006

const metersPerMile = 1609.344

// Activity is the normalized snapshot of one remote activity
type Activity struct {
	ID                 int64        `json:"id"`
	AthleteID          int64        `json:"athlete_id"`
	Title              string       `json:"title"`
	Type               ActivityType `json:"type"`
	SportType          string       `json:"sport_type"`
	StartDate          time.Time    `json:"start_date"`
	Distance           float64      `json:"distance"`
	MovingTime         int64        `json:"moving_time"`
	ElapsedTime        int64        `json:"elapsed_time"`
	ElevationGain      float64      `json:"elevation_gain"`
	Calories           float64      `json:"calories"`
	AverageHeartRate   float64      `json:"average_heart_rate"`
	MaxHeartRate       float64      `json:"max_heart_rate"`
	AverageCadence     float64      `json:"average_cadence"`
	AveragePower       float64      `json:"average_power"`
	AchievementCount   int64        `json:"achievement_count"`
	KudosCount         int64        `json:"kudos_count"`
	Location           string       `json:"location"`
	DeviceName         string       `json:"device_name"`
	DeviceType         string       `json:"device_type"`
	DeviceManufacturer string       `json:"device_manufacturer"`
	GearID             string       `json:"gear_id"`
	StartLatLng        []float64    `json:"start_latlng,omitempty"`
	EndLatLng          []float64    `json:"end_latlng,omitempty"`
	Commute            bool         `json:"commute"`
	Private            bool         `json:"private"`
	Enriched           bool         `json:"enriched"`
}

// NewActivity converts a list record, plus its detail record when one was
// fetched, into an Activity. Location is left for the caller to resolve.
func NewActivity(s SummaryActivity, d *DetailedActivity) Activity {
	rawType := string(s.Type)
	if rawType == "" {
		rawType = string(s.SportType)
	}
	activityType, _ := NormalizeType(rawType)

	a := Activity{
		ID:               s.ID,
		AthleteID:        s.Athlete.ID,
		Title:            string(s.Name),
		Type:             activityType,
		SportType:        string(s.SportType),
		StartDate:        s.StartDate.Time,
		Distance:         s.Distance.Or(Sentinel),
		MovingTime:       int64(s.MovingTime.Or(Sentinel)),
		ElapsedTime:      int64(s.ElapsedTime.Or(Sentinel)),
		ElevationGain:    s.TotalElevationGain.Or(Sentinel),
		Calories:         Sentinel,
		AverageHeartRate: s.AverageHeartrate.Or(Sentinel),
		MaxHeartRate:     s.MaxHeartrate.Or(Sentinel),
		AverageCadence:   s.AverageCadence.Or(Sentinel),
		AveragePower:     s.AverageWatts.Or(Sentinel),
		AchievementCount: int64(s.AchievementCount.Or(Sentinel)),
		KudosCount:       int64(s.KudosCount.Or(Sentinel)),
		GearID:           string(s.GearID),
		Commute:          bool(s.Commute),
		Private:          bool(s.Private),
	}
	if s.StartLatLng.Valid() {
		a.StartLatLng = []float64{s.StartLatLng[0], s.StartLatLng[1]}
	}
	if s.EndLatLng.Valid() {
		a.EndLatLng = []float64{s.EndLatLng[0], s.EndLatLng[1]}
	}

	kilojoules := s.Kilojoules
	if d != nil {
		a.Enriched = true
		a.DeviceName = strings.TrimSpace(string(d.DeviceName))
		if d.Gear != nil && d.Gear.ID != "" {
			a.GearID = string(d.Gear.ID)
		}
		if d.Calories.Valid {
			a.Calories = d.Calories.Value
		}
		if d.Kilojoules.Valid {
			kilojoules = d.Kilojoules
		}
	}
	if a.Calories == Sentinel && kilojoules.Valid {
		a.Calories = kilojoules.Value * KilojoulesToKcal
	}

	a.DeviceManufacturer = deviceManufacturer(a.DeviceName)
	a.DeviceType = gearType(a.GearID)
	return a
}

// deviceManufacturer takes the first word of a device name, e.g. "Garmin Edge 530".
func deviceManufacturer(deviceName string) string {
	if fields := strings.Fields(deviceName); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// gearType follows the remote's id convention: bikes are "b…", shoes "g…".
func gearType(gearID string) string {
	switch {
	case strings.HasPrefix(gearID, "b"):
		return "bike"
	case strings.HasPrefix(gearID, "g"):
		return "shoes"
	default:
		return ""
	}
}

// DistanceIn returns the distance in kilometers, or miles for the imperial
// unit system. Unknown distances stay at Sentinel.
func (a Activity) DistanceIn(unit string) float64 {
	if a.Distance < 0 {
		return Sentinel
	}
	if unit == "imperial" {
		return a.Distance / metersPerMile
	}
	return a.Distance / 1000
}
