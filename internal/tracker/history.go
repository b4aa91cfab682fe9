package tracker

import (
	"context"
	"time"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// History returns a ticket's flattened changelog and how long it has been
// in its current status.
func (c *Client) History(ctx context.Context, key string) (*protocol.TicketHistoryResponse, error) {
	iss, err := c.getIssue(ctx, key, "changelog")
	if err != nil {
		return nil, classify("jira.history", err)
	}
	entries := flatten(iss.Changelog)
	resp := &protocol.TicketHistoryResponse{
		Key:            iss.Key,
		History:        entries,
		StatusDuration: StatusDuration(entries, iss.Fields.Created, c.now()),
	}
	if resp.History == nil {
		resp.History = []protocol.TicketHistory{}
	}
	if iss.Fields.Status != nil {
		resp.CurrentStatus = iss.Fields.Status.Name
	}
	return resp, nil
}

func checkDate(s string) error {
	_, err := time.Parse(protocol.DateLayout, s)
	return err
}
