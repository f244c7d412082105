package strava

import "strings"

// ActivityType is a normalized activity-type tag.
type ActivityType string

const (
	TypeAlpineSki                     ActivityType = "AlpineSki"
	TypeBackcountrySki                ActivityType = "BackcountrySki"
	TypeBadminton                     ActivityType = "Badminton"
	TypeCanoeing                      ActivityType = "Canoeing"
	TypeCrossfit                      ActivityType = "Crossfit"
	TypeEBikeRide                     ActivityType = "EBikeRide"
	TypeElliptical                    ActivityType = "Elliptical"
	TypeEMountainBikeRide             ActivityType = "EMountainBikeRide"
	TypeGolf                          ActivityType = "Golf"
	TypeGravelRide                    ActivityType = "GravelRide"
	TypeHandcycle                     ActivityType = "Handcycle"
	TypeHighIntensityIntervalTraining ActivityType = "HighIntensityIntervalTraining"
	TypeHike                          ActivityType = "Hike"
	TypeIceSkate                      ActivityType = "IceSkate"
	TypeInlineSkate                   ActivityType = "InlineSkate"
	TypeKayaking                      ActivityType = "Kayaking"
	TypeKitesurf                      ActivityType = "Kitesurf"
	TypeMountainBikeRide              ActivityType = "MountainBikeRide"
	TypeNordicSki                     ActivityType = "NordicSki"
	TypePickleball                    ActivityType = "Pickleball"
	TypePilates                       ActivityType = "Pilates"
	TypeRacquetball                   ActivityType = "Racquetball"
	TypeRide                          ActivityType = "Ride"
	TypeRockClimbing                  ActivityType = "RockClimbing"
	TypeRollerSki                     ActivityType = "RollerSki"
	TypeRowing                        ActivityType = "Rowing"
	TypeRun                           ActivityType = "Run"
	TypeSail                          ActivityType = "Sail"
	TypeSkateboard                    ActivityType = "Skateboard"
	TypeSnowboard                     ActivityType = "Snowboard"
	TypeSnowshoe                      ActivityType = "Snowshoe"
	TypeSoccer                        ActivityType = "Soccer"
	TypeSquash                        ActivityType = "Squash"
	TypeStairStepper                  ActivityType = "StairStepper"
	TypeStandUpPaddling               ActivityType = "StandUpPaddling"
	TypeSurfing                       ActivityType = "Surfing"
	TypeSwim                          ActivityType = "Swim"
	TypeTableTennis                   ActivityType = "TableTennis"
	TypeTennis                        ActivityType = "Tennis"
	TypeTrailRun                      ActivityType = "TrailRun"
	TypeVelomobile                    ActivityType = "Velomobile"
	TypeVirtualRide                   ActivityType = "VirtualRide"
	TypeVirtualRow                    ActivityType = "VirtualRow"
	TypeVirtualRun                    ActivityType = "VirtualRun"
	TypeWalk                          ActivityType = "Walk"
	TypeWeightTraining                ActivityType = "WeightTraining"
	TypeWheelchair                    ActivityType = "Wheelchair"
	TypeWindsurf                      ActivityType = "Windsurf"
	TypeWorkout                       ActivityType = "Workout"
	TypeYoga                          ActivityType = "Yoga"
)

// KnownTypes lists every supported activity type.
var KnownTypes = []ActivityType{
	TypeAlpineSki, TypeBackcountrySki, TypeBadminton, TypeCanoeing, TypeCrossfit,
	TypeEBikeRide, TypeElliptical, TypeEMountainBikeRide, TypeGolf, TypeGravelRide,
	TypeHandcycle, TypeHighIntensityIntervalTraining, TypeHike, TypeIceSkate, TypeInlineSkate,
	TypeKayaking, TypeKitesurf, TypeMountainBikeRide, TypeNordicSki, TypePickleball,
	TypePilates, TypeRacquetball, TypeRide, TypeRockClimbing, TypeRollerSki,
	TypeRowing, TypeRun, TypeSail, TypeSkateboard, TypeSnowboard,
	TypeSnowshoe, TypeSoccer, TypeSquash, TypeStairStepper, TypeStandUpPaddling,
	TypeSurfing, TypeSwim, TypeTableTennis, TypeTennis, TypeTrailRun,
	TypeVelomobile, TypeVirtualRide, TypeVirtualRow, TypeVirtualRun, TypeWalk,
	TypeWeightTraining, TypeWheelchair, TypeWindsurf, TypeWorkout, TypeYoga,
}

var typesByLower = func() map[string]ActivityType {
	m := make(map[string]ActivityType, len(KnownTypes))
	for _, t := range KnownTypes {
		m[strings.ToLower(string(t))] = t
	}
	return m
}()

// NormalizeType maps a raw tag to its canonical spelling, case-insensitively.
// Unknown tags are returned trimmed with ok == false.
func NormalizeType(raw string) (ActivityType, bool) {
	raw = strings.TrimSpace(raw)
	if t, ok := typesByLower[strings.ToLower(raw)]; ok {
		return t, true
	}
	return ActivityType(raw), false
}

// TypeFilter is a set of tracked activity types. An empty filter tracks everything.
type TypeFilter map[ActivityType]struct{}

// NewTypeFilter normalizes the configured tags into a filter.
func NewTypeFilter(tags []string) TypeFilter {
	f := make(TypeFilter, len(tags))
	for _, tag := range tags {
		t, _ := NormalizeType(tag)
		if t != "" {
			f[t] = struct{}{}
		}
	}
	return f
}

// Allows reports whether activities of type t are tracked.
func (f TypeFilter) Allows(t ActivityType) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[t]
	return ok
}
