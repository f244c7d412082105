package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sstent/stravasync/internal/strava"
	"github.com/sstent/stravasync/internal/sync"
)

var (
	syncJSON       bool
	syncMaxRetries int
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization cycle and print the snapshot",
	Long: `Runs a single cycle: activities, summary statistics and, when enabled,
the photo cache. Transient failures (rate limit, network, remote errors) are
retried with a growing delay.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		eng, err := newEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer eng.Close()

		if syncMaxRetries < 1 {
			syncMaxRetries = 1
		}

		var out *sync.Outcome
		baseDelay := 2 * time.Second
		for attempt := 1; attempt <= syncMaxRetries; attempt++ {
			out, err = eng.manager.RunCycle(cmd.Context())
			if err == nil {
				break
			}
			kind, _ := strava.KindOf(err)
			if !kind.Transient() || attempt == syncMaxRetries {
				return fmt.Errorf("sync failed after %d attempt(s): %w", attempt, err)
			}
			retryDelay := time.Duration(attempt) * baseDelay
			fmt.Fprintf(os.Stderr, "Attempt %d/%d failed: %v\nRetrying in %v...\n", attempt, syncMaxRetries, err, retryDelay)
			select {
			case <-time.After(retryDelay):
			case <-cmd.Context().Done():
				return fmt.Errorf("sync cancelled: %w", cmd.Context().Err())
			}
		}

		if syncJSON {
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode snapshot: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		printOutcome(out)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "Print the snapshot as JSON")
	syncCmd.Flags().IntVar(&syncMaxRetries, "max-retries", 3, "Maximum attempts for transient failures")

	rootCmd.AddCommand(syncCmd)
}

func printOutcome(out *sync.Outcome) {
	unit := "km"
	if out.DistanceUnit == "imperial" {
		unit = "mi"
	}

	fmt.Printf("Athlete %d, cycle %s\n\n", out.AthleteID, out.CycleID)
	for _, a := range out.Activities {
		distance := "-"
		if d := a.DistanceIn(out.DistanceUnit); d >= 0 {
			distance = fmt.Sprintf("%.2f %s", d, unit)
		}
		fmt.Printf("%s  %-12s %-10s %-30s %s\n",
			a.StartDate.Format("2006-01-02 15:04"), a.Type, distance, a.Title, a.Location)
	}

	fmt.Println()
	for _, b := range strava.Buckets {
		for _, w := range strava.Windows {
			t := out.Summary[b][w]
			fmt.Printf("%-5s %-7s count=%-5d distance=%.0fm moving=%ds elevation=%.0fm\n",
				b, w, t.Count, t.Distance, t.MovingTime, t.ElevationGain)
		}
	}

	fmt.Printf("\nImages cached: %d\n", len(out.Images))
}
