package usage

import (
	"fmt"
	"time"
)

// WindowAllTime is the unbounded ranking window.
const WindowAllTime = "all_time"

// DailyWindow returns the ranking window key for the UTC calendar day of t.
func DailyWindow(t time.Time) string {
	return "daily:" + t.UTC().Format("2006-01-02")
}

// WeeklyWindow returns the ranking window key for the ISO-8601 week of t.
// Week starts Monday; the year is the one containing that week's Thursday,
// so the first days of January may belong to the prior ISO year.
func WeeklyWindow(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("weekly:%d-W%d", year, week)
}

// Windows returns every ranking window an event at time t contributes to.
func Windows(t time.Time) []string {
	return []string{WindowAllTime, DailyWindow(t), WeeklyWindow(t)}
}
