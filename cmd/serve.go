package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sstent/stravasync/internal/events"
	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/sync"
	"github.com/sstent/stravasync/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

var serveListen string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cycles on a schedule and on webhook events",
	Long: `Runs a cycle at startup and then every sync_interval. Push events for the
configured subscription trigger an extra cycle; triggers that arrive while a
cycle runs collapse into one follow-up. Each snapshot is published on the
activities_updated, stats_updated and images_updated topics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.ListenAddr = serveListen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		bus := events.NewBus(events.NewLoggerAdapter())
		defer bus.Close()
		if err := logSnapshots(ctx, bus); err != nil {
			return fmt.Errorf("failed to subscribe to snapshots: %w", err)
		}

		scheduler := sync.NewScheduler(eng.manager, cfg.SyncInterval, func(ctx context.Context, out *sync.Outcome) {
			if err := bus.PublishOutcome(ctx, out); err != nil {
				logging.Error().Err(err).Str("cycle_id", out.CycleID).Msg("Failed to publish snapshot")
			}
		})

		handler := webhook.NewHandler(webhook.Config{
			SubscriptionID: cfg.WebhookSubscriptionID,
			Host:           cfg.WebhookHost,
			VerifyToken:    cfg.WebhookVerifyToken,
		}, scheduler, eng.manager)
		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
		g.Go(func() error {
			logging.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		scheduler.Trigger(sync.SourceStartup)
		if err := g.Wait(); err != nil {
			return err
		}
		logging.Info().Msg("Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides listen_addr)")

	rootCmd.AddCommand(serveCmd)
}

// logSnapshots records every published snapshot message.
func logSnapshots(ctx context.Context, bus *events.Bus) error {
	for _, topic := range events.Topics {
		messages, err := bus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go func(topic string) {
			for msg := range messages {
				logging.Debug().
					Str("topic", topic).
					Str("cycle_id", msg.Metadata.Get("cycle_id")).
					Int("bytes", len(msg.Payload)).
					Msg("Snapshot published")
				msg.Ack()
			}
		}(topic)
	}
	return nil
}
