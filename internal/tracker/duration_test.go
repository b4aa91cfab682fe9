package tracker

import (
	"testing"
	"time"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

func TestStatusDuration(t *testing.T) {
	t1 := "2025-01-10T09:00:00.000+0000"
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	change := []protocol.TicketHistory{{Created: t1, Field: "status", From: "To Do", To: "In Progress"}}

	tests := []struct {
		name    string
		changes []protocol.TicketHistory
		created string
		now     time.Time
		want    string
	}{
		{"hours", change, "2025-01-01T00:00:00.000+0000", base.Add(90 * time.Minute), "1 hours"},
		{"days", change, "2025-01-01T00:00:00.000+0000", base.Add(25 * time.Hour), "1 days, 1 hours"},
		{"minutes", change, "", base.Add(59 * time.Minute), "59 minutes"},
		{"no history uses created", nil, t1, base.Add(3 * time.Hour), "3 hours"},
		{"non-status changes ignored", []protocol.TicketHistory{{Created: "2025-01-10T11:00:00.000+0000", Field: "assignee"}}, t1, base.Add(3 * time.Hour), "3 hours"},
		{"latest status change wins", []protocol.TicketHistory{
			{Created: "2025-01-09T09:00:00.000+0000", Field: "status"},
			change[0],
		}, "", base.Add(2 * time.Hour), "2 hours"},
		{"bad change time", []protocol.TicketHistory{{Created: "yesterday", Field: "status"}}, t1, base, "Unknown"},
		{"bad created", nil, "not a time", base, "Unknown"},
		{"future clamps to zero", change, "", base.Add(-time.Hour), "0 minutes"},
		{"rfc3339", nil, "2025-01-10T09:00:00Z", base.Add(48 * time.Hour), "2 days, 0 hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusDuration(tt.changes, tt.created, tt.now); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseTimeOffsets(t *testing.T) {
	a, err := ParseTime("2025-01-10T11:00:00.000+0200")
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	b, _ := ParseTime("2025-01-10T09:00:00Z")
	if !a.Equal(b) {
		t.Errorf("expected %v to equal %v", a, b)
	}
}
