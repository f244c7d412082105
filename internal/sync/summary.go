package sync

import "github.com/sstent/stravasync/internal/strava"

// Aggregate maps the remote athlete stats into a Summary with every bucket
// and window present. Absent or malformed figures are zero.
func Aggregate(stats *strava.AthleteStats) strava.Summary {
	summary := make(strava.Summary, len(strava.Buckets))
	for _, b := range strava.Buckets {
		windows := make(map[strava.Window]strava.Totals, len(strava.Windows))
		for _, w := range strava.Windows {
			windows[w] = totalsFrom(stats.Totals(b, w))
		}

		if stats != nil {
			all := windows[strava.WindowAll]
			all.BiggestRideDistance = stats.BiggestRideDistance.Or(0)
			all.BiggestClimbElevationGain = stats.BiggestClimbElevationGain.Or(0)
			windows[strava.WindowAll] = all
		}
		summary[b] = windows
	}
	return summary
}

func totalsFrom(t *strava.ActivityTotal) strava.Totals {
	if t == nil {
		return strava.Totals{}
	}
	return strava.Totals{
		Count:            int64(t.Count.Or(0)),
		Distance:         t.Distance.Or(0),
		MovingTime:       int64(t.MovingTime.Or(0)),
		ElapsedTime:      int64(t.ElapsedTime.Or(0)),
		ElevationGain:    t.ElevationGain.Or(0),
		AchievementCount: int64(t.AchievementCount.Or(0)),
	}
}
