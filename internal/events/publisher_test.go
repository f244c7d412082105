package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstent/stravasync/internal/strava"
	"github.com/sstent/stravasync/internal/sync"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		require.NotNil(t, msg)
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func testOutcome() *sync.Outcome {
	completed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	return &sync.Outcome{
		CycleID:      "cycle-1",
		AthleteID:    7,
		DistanceUnit: "metric",
		Activities:   []strava.Activity{{ID: 1, Title: "Run", Type: strava.TypeRun, Location: "Boulder"}},
		Summary: strava.Summary{
			strava.BucketRun: {strava.WindowAll: {Count: 3}},
		},
		Images:      []strava.Image{{URL: "https://img/1.jpg", CapturedAt: completed}},
		CompletedAt: completed,
	}
}

func TestBus_PublishOutcome(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streams := make(map[string]<-chan *message.Message)
	for _, topic := range Topics {
		ch, err := bus.Subscribe(ctx, topic)
		require.NoError(t, err)
		streams[topic] = ch
	}

	require.NoError(t, bus.PublishOutcome(ctx, testOutcome()))

	msg := receive(t, streams[TopicActivities])
	assert.Equal(t, "cycle-1", msg.Metadata.Get("cycle_id"))
	assert.Equal(t, "7", msg.Metadata.Get("athlete_id"))
	var activities ActivitiesPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &activities))
	require.Len(t, activities.Activities, 1)
	assert.Equal(t, "Boulder", activities.Activities[0].Location)
	assert.Equal(t, "metric", activities.DistanceUnit)

	msg = receive(t, streams[TopicStats])
	var stats StatsPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &stats))
	assert.Equal(t, int64(3), stats.Summary[strava.BucketRun][strava.WindowAll].Count)

	msg = receive(t, streams[TopicImages])
	var images ImagesPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &images))
	require.Len(t, images.Images, 1)
	assert.Equal(t, "https://img/1.jpg", images.Images[0].URL)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	assert.NoError(t, bus.PublishOutcome(context.Background(), testOutcome()))
}

func TestBus_ClosedRejectsPublish(t *testing.T) {
	bus := NewBus(nil)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.Error(t, bus.PublishOutcome(context.Background(), testOutcome()))
}
