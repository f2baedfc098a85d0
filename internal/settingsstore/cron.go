package settingsstore

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// MinCronSpacing is the shortest allowed gap between two periodic syncs.
const MinCronSpacing = 4 * time.Minute

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronSchedule parses a 5-field schedule and rejects schedules that
// would fire more often than MinCronSpacing.
func ValidateCronSchedule(schedule string) error {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return err
	}
	if gap := minGap(sched); gap < MinCronSpacing {
		return fmt.Errorf("schedule %q runs every %s, minimum is %s", schedule, gap, MinCronSpacing)
	}
	return nil
}

// minGap samples a week of runs and returns the smallest spacing between two.
func minGap(sched cron.Schedule) time.Duration {
	t := sched.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	end := t.Add(7 * 24 * time.Hour)
	gap := time.Duration(1<<63 - 1)
	for i := 0; i < 5000 && t.Before(end); i++ {
		next := sched.Next(t)
		if next.IsZero() {
			break
		}
		if d := next.Sub(t); d < gap {
			gap = d
		}
		t = next
	}
	return gap
}

// GetCronDescription returns a human-readable description of a cron schedule.
func GetCronDescription(schedule string) string {
	switch schedule {
	case "0 * * * *":
		return "Every hour at :00"
	case "*/15 * * * *":
		return "Every 15 minutes"
	case "*/30 * * * *":
		return "Every 30 minutes"
	case "0 */6 * * *":
		return "Every 6 hours"
	case "0 0 * * *":
		return "Daily at midnight"
	case "0 0 * * 0":
		return "Weekly on Sunday at midnight"
	default:
		return "Custom schedule: " + schedule
	}
}

// GetNextRunTime calculates when the next sync will run based on the schedule.
func GetNextRunTime(schedule string) (*time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	next := sched.Next(time.Now())
	return &next, nil
}
