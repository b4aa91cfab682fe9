package tracker

import (
	"fmt"
	"time"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseTime parses the timestamp formats Jira emits.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// StatusDuration reports how long a ticket has been in its current status.
// The baseline is the most recent status change in changes, or created
// when there is none. Any unparseable timestamp yields "Unknown".
func StatusDuration(changes []protocol.TicketHistory, created string, now time.Time) string {
	var baseline time.Time
	found := false
	for i := len(changes) - 1; i >= 0; i-- {
		if changes[i].Field != "status" {
			continue
		}
		t, err := ParseTime(changes[i].Created)
		if err != nil {
			return "Unknown"
		}
		if !found || t.After(baseline) {
			baseline = t
			found = true
		}
	}
	if !found {
		t, err := ParseTime(created)
		if err != nil {
			return "Unknown"
		}
		baseline = t
	}
	return FormatDuration(now.Sub(baseline))
}

// FormatDuration renders d as "D days, H hours", "H hours" or "M minutes".
// Negative durations count as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	rem := d % (24 * time.Hour)
	hours := int(rem / time.Hour)
	switch {
	case days > 0:
		return fmt.Sprintf("%d days, %d hours", days, hours)
	case hours > 0:
		return fmt.Sprintf("%d hours", hours)
	default:
		return fmt.Sprintf("%d minutes", int(rem/time.Minute))
	}
}
