// Package slackconn takes requests from Slack over Socket Mode and answers
// in the same channel or thread.
package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/sprintagent/sprintagent/internal/connector"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken string   // xoxb-... Bot User OAuth Token
	AppToken string   // xapp-... App-Level Token (for Socket Mode)
	Channels []string // Channels where plain messages start runs (empty = mentions and DMs only)
}

// Connector implements connector.Connector for Slack via Socket Mode.
type Connector struct {
	api     *slack.Client
	socket  *socketmode.Client
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	botID   string
}

// New creates a new Slack connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "slack")

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &Connector{
		api:     api,
		socket:  socketmode.New(api),
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send posts a reply. A "channel:thread_ts" chat ID replies in the thread.
func (c *Connector) Send(ctx context.Context, msg connector.OutboundMessage) error {
	channel, thread := SplitChatID(msg.ChatID)
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if thread != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand:
				c.handleSlashCommand(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// bots, edits and deletes are ignored
		if ev.BotID != "" || ev.User == "" || ev.User == c.botID || ev.SubType != "" {
			return
		}
		if !c.acceptsPlain(ev.ChannelType, ev.Channel, ev.Text) {
			return
		}
		c.dispatch(ctx, ev.User, ChatID(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp), ev.Text)
	case *slackevents.AppMentionEvent:
		if ev.User == c.botID || !c.isAllowedChannel(ev.Channel) {
			return
		}
		c.dispatch(ctx, ev.User, ChatID(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp), StripMention(ev.Text, c.botID))
	}
}

func (c *Connector) handleSlashCommand(ctx context.Context, event socketmode.Event) {
	cmd, ok := event.Data.(slack.SlashCommand)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)
	c.dispatch(ctx, cmd.UserID, cmd.ChannelID, cmd.Text)
}

// dispatch runs the request off the event loop; runs take several model
// calls and must not stall socket acks.
func (c *Connector) dispatch(ctx context.Context, user, chatID, text string) {
	msg := connector.InboundMessage{Channel: "slack", SenderID: user, ChatID: chatID, Content: text}
	go connector.Dispatch(ctx, c, c.handler, msg, c.logger)
}

// acceptsPlain reports whether a message without a bot mention starts a
// run. Direct messages always do; channel messages only in configured
// channels. Mentions arrive again as app_mention events.
func (c *Connector) acceptsPlain(channelType, channel, text string) bool {
	if c.mentionsBot(text) {
		return false
	}
	if channelType == "im" {
		return true
	}
	return len(c.config.Channels) > 0 && c.isAllowedChannel(channel)
}

func (c *Connector) isAllowedChannel(channel string) bool {
	if len(c.config.Channels) == 0 {
		return true
	}
	for _, ch := range c.config.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

func (c *Connector) mentionsBot(text string) bool {
	return c.botID != "" && strings.Contains(text, "<@"+c.botID+">")
}

// ChatID keys a conversation by channel and thread. Top-level messages
// start a thread under themselves.
func ChatID(channel, threadTS, ts string) string {
	if threadTS == "" {
		threadTS = ts
	}
	if threadTS == "" {
		return channel
	}
	return channel + ":" + threadTS
}

// SplitChatID is the inverse of ChatID.
func SplitChatID(id string) (channel, thread string) {
	channel, thread, _ = strings.Cut(id, ":")
	return channel, thread
}

// StripMention removes the <@BOTID> mention from message text. Other
// user mentions are kept as written.
func StripMention(text, botID string) string {
	text = strings.Replace(text, "<@"+botID+">", "", 1)
	return strings.TrimSpace(text)
}
