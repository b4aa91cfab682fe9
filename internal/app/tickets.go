package app

import (
	"context"
	"strings"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// DefaultMaxResults is used when a listing does not ask for a size.
const DefaultMaxResults = 50

// TicketList is a page of a project's tickets.
type TicketList struct {
	Project string                `json:"project"`
	Total   int                   `json:"total"`
	Tickets []protocol.TicketInfo `json:"tickets"`
}

// ListTickets returns a project's newest tickets. An empty project means
// the configured one.
func (s *Service) ListTickets(ctx context.Context, project string, maxResults int) (*TicketList, error) {
	creds, err := s.defaults()
	if err != nil {
		return nil, err
	}
	if project = strings.TrimSpace(project); project == "" {
		project = creds.ProjectKey
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	tickets, err := s.clients(creds).ListProject(ctx, project, maxResults)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []protocol.TicketInfo{}
	}
	return &TicketList{Project: project, Total: len(tickets), Tickets: tickets}, nil
}

// Ticket returns the full view of one ticket.
func (s *Service) Ticket(ctx context.Context, key string) (*protocol.TicketDetails, error) {
	c, err := s.client(key)
	if err != nil {
		return nil, err
	}
	return c.Details(ctx, key)
}

// History returns a ticket's changelog.
func (s *Service) History(ctx context.Context, key string) (*protocol.TicketHistoryResponse, error) {
	c, err := s.client(key)
	if err != nil {
		return nil, err
	}
	return c.History(ctx, key)
}

// UpdateTicket applies u. The result is false when the field update was
// rejected; status and comment changes are best effort.
func (s *Service) UpdateTicket(ctx context.Context, u protocol.TicketUpdate) (bool, error) {
	c, err := s.client(u.Key)
	if err != nil {
		return false, err
	}
	return c.Update(ctx, u)
}

// Comment adds a comment to a ticket.
func (s *Service) Comment(ctx context.Context, key, body string) (*protocol.TicketComment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperr.Validationf("app.comment", "comment body is required")
	}
	c, err := s.client(key)
	if err != nil {
		return nil, err
	}
	return c.AddComment(ctx, key, body)
}

func (s *Service) client(key string) (TicketClient, error) {
	if strings.TrimSpace(key) == "" {
		return nil, apperr.Validationf("app.ticket", "ticket key is required")
	}
	creds, err := s.defaults()
	if err != nil {
		return nil, err
	}
	return s.clients(creds), nil
}
