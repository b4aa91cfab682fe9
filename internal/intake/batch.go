package intake

import (
	"context"
	"log/slog"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Creator files one ticket.
type Creator interface {
	Create(ctx context.Context, req protocol.TicketRequest) (string, error)
}

// Item is the outcome of filing one planned ticket.
type Item struct {
	Summary string             `json:"summary"`
	Type    protocol.IssueType `json:"issue_type"`
	Key     string             `json:"key,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// BatchResult reports a document's tickets. Success means at least one
// ticket was created.
type BatchResult struct {
	Success   bool      `json:"success"`
	Created   int       `json:"created"`
	Failed    int       `json:"failed"`
	Items     []Item    `json:"items"`
	Breakdown Breakdown `json:"summary"`
}

// File creates every request in order. A failure is recorded and the
// remaining requests are still attempted.
func File(ctx context.Context, c Creator, reqs []protocol.TicketRequest, b Breakdown, logger *slog.Logger) *BatchResult {
	if logger == nil {
		logger = slog.Default()
	}
	res := &BatchResult{Items: make([]Item, 0, len(reqs)), Breakdown: b}
	for _, req := range reqs {
		item := Item{Summary: req.Summary, Type: req.Type()}
		key, err := c.Create(ctx, req)
		if err != nil {
			logger.Error("failed to create ticket from requirements", "summary", req.Summary, "error", err)
			item.Error = err.Error()
			res.Failed++
		} else {
			item.Key = key
			res.Created++
		}
		res.Items = append(res.Items, item)
	}
	res.Success = res.Created > 0
	return res
}
