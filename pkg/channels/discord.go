package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

const (
	sendTimeout = 10 * time.Second
	// Discord clears the indicator after roughly ten seconds.
	typingRefreshInterval = 9500 * time.Millisecond
	messageChunkLimit     = 1500
)

type DiscordChannel struct {
	*BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	readyOnce sync.Once
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus),
		session:     session,
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleReady)
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	// Discord allows 2000 characters; the slack leaves room to close code blocks.
	for _, chunk := range splitMessage(msg.Content, messageChunkLimit) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}

	return nil
}

// HasChannel reports whether the bot can see chatID, asking the REST API
// when the channel is not in the gateway state cache.
func (c *DiscordChannel) HasChannel(chatID string) bool {
	if chatID == "" || c.session == nil {
		return false
	}
	if c.session.State != nil {
		if ch, err := c.session.State.Channel(chatID); err == nil && ch != nil {
			return true
		}
	}
	ch, err := c.session.Channel(chatID)
	return err == nil && ch != nil
}

func (c *DiscordChannel) Typing(ctx context.Context, chatID string, d time.Duration) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	return waitTyping(ctx, d, typingRefreshInterval, func() {
		c.sendTyping(chatID)
	})
}

// splitMessage splits long messages into chunks, preserving code block integrity
// Uses natural boundaries (newlines, spaces) and extends messages slightly to avoid breaking code blocks
func splitMessage(content string, limit int) []string {
	var messages []string

	for len(content) > 0 {
		if len(content) <= limit {
			messages = append(messages, content)
			break
		}

		msgEnd := limit

		// Find natural split point within the limit
		msgEnd = findLastNewline(content[:limit], 200)
		if msgEnd <= 0 {
			msgEnd = findLastSpace(content[:limit], 100)
		}
		if msgEnd <= 0 {
			msgEnd = limit
		}

		// Check if this would end with an incomplete code block
		candidate := content[:msgEnd]
		unclosedIdx := findLastUnclosedCodeBlock(candidate)

		if unclosedIdx >= 0 {
			// Message would end with incomplete code block
			// Try to extend to include the closing ``` (with some buffer)
			extendedLimit := limit + 500 // Allow 500 char buffer for code blocks
			if len(content) > extendedLimit {
				closingIdx := findNextClosingCodeBlock(content, msgEnd)
				if closingIdx > 0 && closingIdx <= extendedLimit {
					// Extend to include the closing ```
					msgEnd = closingIdx
				} else {
					// Can't find closing, split before the code block
					msgEnd = findLastNewline(content[:unclosedIdx], 200)
					if msgEnd <= 0 {
						msgEnd = findLastSpace(content[:unclosedIdx], 100)
					}
					if msgEnd <= 0 {
						msgEnd = unclosedIdx
					}
				}
			} else {
				// Remaining content fits within extended limit
				msgEnd = len(content)
			}
		}

		if msgEnd <= 0 {
			msgEnd = limit
		}

		messages = append(messages, content[:msgEnd])
		content = strings.TrimSpace(content[msgEnd:])
	}

	return messages
}

// findLastUnclosedCodeBlock finds the last opening ``` that doesn't have a closing ```
// Returns the position of the opening ``` or -1 if all code blocks are complete
func findLastUnclosedCodeBlock(text string) int {
	count := 0
	lastOpenIdx := -1

	for i := 0; i < len(text); i++ {
		if i+2 < len(text) && text[i] == '`' && text[i+1] == '`' && text[i+2] == '`' {
			if count == 0 {
				lastOpenIdx = i
			}
			count++
			i += 2
		}
	}

	// If odd number of ``` markers, last one is unclosed
	if count%2 == 1 {
		return lastOpenIdx
	}
	return -1
}

// findNextClosingCodeBlock finds the next closing ``` starting from a position
// Returns the position after the closing ``` or -1 if not found
func findNextClosingCodeBlock(text string, startIdx int) int {
	for i := startIdx; i < len(text); i++ {
		if i+2 < len(text) && text[i] == '`' && text[i+1] == '`' && text[i+2] == '`' {
			return i + 3
		}
	}
	return -1
}

// findLastNewline finds the last newline character within the last N characters
// Returns the position of the newline or -1 if not found
func findLastNewline(s string, searchWindow int) int {
	searchStart := len(s) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(s) - 1; i >= searchStart; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}

// findLastSpace finds the last space character within the last N characters
// Returns the position of the space or -1 if not found
func findLastSpace(s string, searchWindow int) int {
	searchStart := len(s) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(s) - 1; i >= searchStart; i-- {
		if s[i] == ' ' || s[i] == '\t' {
			return i
		}
	}
	return -1
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) sendTyping(channelID string) {
	if channelID == "" || c.session == nil {
		return
	}
	if err := c.session.ChannelTyping(channelID); err != nil {
		logger.ErrorCF("discord", "Failed to send typing indicator", map[string]any{
			"error": err.Error(),
		})
	}
}

// appendContent safely appends suffix text to existing content.
func appendContent(content, suffix string) string {
	if content == "" {
		return suffix
	}
	return content + "\n" + suffix
}

// handleReady fires on every (re)connect; only the first is published.
func (c *DiscordChannel) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	c.readyOnce.Do(func() {
		fields := map[string]any{"guilds": len(r.Guilds)}
		if r.User != nil {
			fields["user"] = r.User.Username
		}
		logger.InfoCF("discord", "Discord gateway ready", fields)
		c.HandleReady()
	})
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}

	content := m.Content
	for _, attachment := range m.Attachments {
		content = appendContent(content, fmt.Sprintf("[attachment: %s]", attachment.Filename))
	}
	if content == "" {
		return
	}

	isSelf := s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID
	displayName := memberDisplayName(m.Member, m.Author)

	logger.DebugCF("discord", "Received message", map[string]any{
		"display_name": displayName,
		"sender_id":    m.Author.ID,
		"channel_id":   m.ChannelID,
		"is_self":      isSelf,
	})

	c.HandleMessage(bus.InboundMessage{
		MessageID:   m.ID,
		SenderID:    m.Author.ID,
		DisplayName: displayName,
		ChatID:      m.ChannelID,
		Content:     content,
		IsSelf:      isSelf,
		Metadata: map[string]string{
			"username": m.Author.Username,
			"guild_id": m.GuildID,
			"is_bot":   fmt.Sprintf("%t", m.Author.Bot),
		},
	})
}

// memberDisplayName prefers the guild nickname, then the global display name.
func memberDisplayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && strings.TrimSpace(member.Nick) != "" {
		return member.Nick
	}
	if user == nil {
		return ""
	}
	return user.DisplayName()
}
