package cmd

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/sstent/stravasync/internal/config"
	"github.com/sstent/stravasync/internal/db"
	"github.com/sstent/stravasync/internal/geocode"
	"github.com/sstent/stravasync/internal/strava"
	"github.com/sstent/stravasync/internal/sync"
)

// engine bundles the manager with the resources it owns.
type engine struct {
	manager  *sync.Manager
	database *db.SQLiteDatabase
}

// newEngine wires the API client, geocoder, image store and manager from cfg.
func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	tokens := tokenSource(cfg)

	apiClient := strava.NewClient(&http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: &oauth2.Transport{Source: tokens},
	}, cfg.APIURL, strava.WithRateLimit(cfg.RateLimit))

	geocoder := geocode.NewClient(&http.Client{Timeout: cfg.RequestTimeout}, cfg.GeocodeURL,
		geocode.WithAPIKey(cfg.GeocodeAPIKey))

	e := &engine{}
	var repo strava.ImageCacheRepository
	if cfg.PhotosEnabled {
		database, err := db.NewDatabase(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		e.database = database
		repo = database
	}

	e.manager = sync.NewManager(tokens, apiClient, geocoder, repo, sync.Config{
		ActivityTypes:        cfg.ActivityTypes,
		RecentActivities:     cfg.RecentActivities,
		PhotosEnabled:        cfg.PhotosEnabled,
		PhotoRefreshInterval: cfg.PhotoRefreshInterval,
		MaxImages:            cfg.MaxImages,
		DistanceUnit:         cfg.DistanceUnit,
	})
	if err := e.manager.Init(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to restore image cache: %w", err)
	}
	return e, nil
}

// tokenSource refreshes access tokens from the configured refresh token. It
// is not tied to a command context so a cycle finishing during shutdown can
// still authorize.
func tokenSource(cfg *config.Config) oauth2.TokenSource {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.RequestTimeout})
	return oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
}

// Close releases the database, if one was opened.
func (e *engine) Close() error {
	if e.database == nil {
		return nil
	}
	return e.database.Close()
}
