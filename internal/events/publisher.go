// Package events publishes cycle snapshots on an in-process message bus.
package events

import (
	"context"
	"strconv"
	gosync "sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sstent/stravasync/internal/strava"
	"github.com/sstent/stravasync/internal/sync"
)

// Snapshot topics.
const (
	TopicActivities = "activities_updated"
	TopicStats      = "stats_updated"
	TopicImages     = "images_updated"
)

// Topics lists every snapshot topic in publication order.
var Topics = []string{TopicActivities, TopicStats, TopicImages}

// ActivitiesPayload is the body of TopicActivities messages.
type ActivitiesPayload struct {
	CycleID      string            `json:"cycle_id"`
	AthleteID    int64             `json:"athlete_id"`
	DistanceUnit string            `json:"distance_unit"`
	Activities   []strava.Activity `json:"activities"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StatsPayload is the body of TopicStats messages.
type StatsPayload struct {
	CycleID   string         `json:"cycle_id"`
	AthleteID int64          `json:"athlete_id"`
	Summary   strava.Summary `json:"summary"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ImagesPayload is the body of TopicImages messages.
type ImagesPayload struct {
	CycleID   string         `json:"cycle_id"`
	Images    []strava.Image `json:"images"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Bus publishes snapshots over a watermill gochannel pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     gosync.RWMutex
	closed bool
}

// NewBus creates an in-process bus. Messages published with no subscriber
// are dropped.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = NewLoggerAdapter()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, logger),
	}
}

// Subscribe returns the message stream of topic until ctx is done. Each
// message must be acked.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// PublishOutcome publishes the three snapshot topics of a successful cycle.
func (b *Bus) PublishOutcome(ctx context.Context, out *sync.Outcome) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("bus is closed")
	}

	payloads := map[string]interface{}{
		TopicActivities: ActivitiesPayload{
			CycleID:      out.CycleID,
			AthleteID:    out.AthleteID,
			DistanceUnit: out.DistanceUnit,
			Activities:   out.Activities,
			UpdatedAt:    out.CompletedAt,
		},
		TopicStats: StatsPayload{
			CycleID:   out.CycleID,
			AthleteID: out.AthleteID,
			Summary:   out.Summary,
			UpdatedAt: out.CompletedAt,
		},
		TopicImages: ImagesPayload{
			CycleID:   out.CycleID,
			Images:    out.Images,
			UpdatedAt: out.CompletedAt,
		},
	}

	for _, topic := range Topics {
		data, err := json.Marshal(payloads[topic])
		if err != nil {
			return errors.Wrapf(err, "marshal %s payload", topic)
		}
		msg := message.NewMessage(uuid.NewString(), data)
		msg.Metadata.Set("cycle_id", out.CycleID)
		msg.Metadata.Set("athlete_id", strconv.FormatInt(out.AthleteID, 10))
		msg.SetContext(ctx)

		if err := b.pubsub.Publish(topic, msg); err != nil {
			return errors.Wrapf(err, "publish %s", topic)
		}
	}
	return nil
}

// Close stops the bus and closes every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
