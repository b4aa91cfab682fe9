// Package connector defines how chat platforms and webhooks feed requests
// into sprintagent and receive the outcome.
package connector

import (
	"context"
	"log/slog"
	"strings"
)

// Connector is a chat platform that delivers requests and accepts replies.
type Connector interface {
	// Name returns the connector type (e.g., "telegram", "slack").
	Name() string
	// Start begins listening for inbound messages. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// Send delivers a reply to the platform.
	Send(ctx context.Context, msg OutboundMessage) error
}

// OutboundMessage is a reply sent back to a platform.
type OutboundMessage struct {
	ChatID  string // Platform-specific chat identifier
	Content string // Plain text
}

// InboundMessage is a request received from a platform.
type InboundMessage struct {
	Channel  string // Connector name (e.g., "telegram")
	SenderID string // Platform-specific sender identifier
	ChatID   string // Platform-specific chat identifier
	Content  string // Request text
}

// InboundHandler processes one request and returns the reply text.
type InboundHandler func(ctx context.Context, msg InboundMessage) (string, error)

// FailureReply is sent when the handler returns an error.
const FailureReply = "Sorry, I couldn't process that request: "

// Dispatch runs h for msg and sends the reply (or the failure) back
// through c. Empty messages are ignored.
func Dispatch(ctx context.Context, c Connector, h InboundHandler, msg InboundMessage, logger *slog.Logger) {
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	reply, err := h(ctx, msg)
	if err != nil {
		logger.Error("inbound handler error",
			"connector", c.Name(),
			"chat_id", msg.ChatID,
			"error", err,
		)
		reply = FailureReply + err.Error()
	}
	if strings.TrimSpace(reply) == "" {
		return
	}
	if err := c.Send(ctx, OutboundMessage{ChatID: msg.ChatID, Content: reply}); err != nil {
		logger.Error("reply failed", "connector", c.Name(), "chat_id", msg.ChatID, "error", err)
	}
}
