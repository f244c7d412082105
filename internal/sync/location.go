package sync

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sstent/stravasync/internal/geocode"
	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/strava"
)

// UnknownArea is the location of an activity nothing could name.
const UnknownArea = "Unknown Area"

// Resolver picks the display location of an activity.
type Resolver struct {
	geocoder Geocoder
	log      zerolog.Logger
}

// NewResolver creates a resolver. A nil geocoder disables reverse geocoding.
func NewResolver(geocoder Geocoder) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		log:      logging.With().Str("component", "location").Logger(),
	}
}

// Resolve returns the first available of: the first segment's city, the
// summary city, the summary state, a reverse geocode of the start point, and
// UnknownArea. Reverse geocoding is only attempted when detail is non-nil.
func (r *Resolver) Resolve(ctx context.Context, s strava.SummaryActivity, detail *strava.DetailedActivity) string {
	if detail != nil && len(detail.SegmentEfforts) > 0 {
		if city := usable(string(detail.SegmentEfforts[0].Segment.City)); city != "" {
			return city
		}
	}
	if city := usable(string(s.LocationCity)); city != "" {
		return city
	}
	if state := usable(string(s.LocationState)); state != "" {
		return state
	}
	if detail != nil && r.geocoder != nil && s.StartLatLng.Valid() {
		place, err := r.geocoder.Lookup(ctx, s.StartLatLng[0], s.StartLatLng[1])
		if err != nil {
			r.log.Debug().Err(err).Int64("activity_id", s.ID).Msg("Reverse geocode gave no location")
		} else if name := usable(place.Name()); name != "" {
			return name
		}
	}
	return UnknownArea
}

func usable(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, geocode.ThrottledSentinel) {
		return ""
	}
	return s
}
