package sync

import (
	"context"

	"github.com/sstent/stravasync/internal/geocode"
	"github.com/sstent/stravasync/internal/strava"
)

// API is the remote surface a cycle reads from. Implemented by *strava.Client.
// Every error it returns must be a classified *strava.Error.
type API interface {
	ListActivities(ctx context.Context) ([]strava.SummaryActivity, error)
	GetActivity(ctx context.Context, id int64) (*strava.DetailedActivity, error)
	GetAthleteStats(ctx context.Context, athleteID int64) (*strava.AthleteStats, error)
	PhotoAPI
}

// PhotoAPI fetches the photos of one activity.
type PhotoAPI interface {
	GetActivityPhotos(ctx context.Context, id int64) ([]strava.Photo, error)
}

// Geocoder resolves a coordinate to a place. Implemented by *geocode.Client.
type Geocoder interface {
	Lookup(ctx context.Context, lat, lon float64) (geocode.Place, error)
}
