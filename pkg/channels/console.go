package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

// ConsoleChatID is the only chat the console gateway serves.
const ConsoleChatID = "console"

const consoleSenderID = "console-user"

type ConsoleOptions struct {
	BotName  string
	UserName string
	Stdin    io.ReadCloser
	Stdout   io.Writer
	// OnExit runs once when the user quits or input ends.
	OnExit func()
}

// ConsoleChannel is a local gateway that talks to the bot from a terminal.
type ConsoleChannel struct {
	*BaseChannel
	opts ConsoleOptions
	rl   *readline.Instance
	out  io.Writer
	mu   sync.Mutex
	exit sync.Once
}

func NewConsoleChannel(opts ConsoleOptions, bus *bus.MessageBus) *ConsoleChannel {
	if strings.TrimSpace(opts.UserName) == "" {
		opts.UserName = "you"
	}
	if strings.TrimSpace(opts.BotName) == "" {
		opts.BotName = "bot"
	}
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", bus),
		opts:        opts,
		out:         out,
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", c.opts.UserName),
		HistoryFile:     filepath.Join(os.TempDir(), ".aizoo_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           c.opts.Stdin,
		Stdout:          c.opts.Stdout,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}

	c.mu.Lock()
	c.rl = rl
	c.out = rl.Stdout()
	c.mu.Unlock()

	c.setRunning(true)
	c.HandleReady()
	go c.readLoop(rl)

	logger.InfoC("console", "Console gateway started")
	return nil
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	c.mu.Lock()
	rl := c.rl
	c.rl = nil
	c.mu.Unlock()
	if rl != nil {
		return rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) readLoop(rl *readline.Instance) {
	defer c.finish()
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return
			}
			logger.ErrorCF("console", "Error reading input", map[string]any{
				"error": err.Error(),
			})
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}
		c.handleLine(input)
	}
}

func (c *ConsoleChannel) handleLine(input string) {
	c.HandleMessage(bus.InboundMessage{
		SenderID:    consoleSenderID,
		DisplayName: c.opts.UserName,
		ChatID:      ConsoleChatID,
		Content:     input,
	})
}

func (c *ConsoleChannel) finish() {
	c.exit.Do(func() {
		if c.opts.OnExit != nil {
			c.opts.OnExit()
		}
	})
}

func (c *ConsoleChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.HasChannel(msg.ChatID) {
		return fmt.Errorf("console cannot deliver to chat %q", msg.ChatID)
	}
	return c.println(fmt.Sprintf("%s: %s", c.opts.BotName, msg.Content))
}

func (c *ConsoleChannel) HasChannel(chatID string) bool {
	return chatID == ConsoleChatID
}

func (c *ConsoleChannel) Typing(ctx context.Context, chatID string, d time.Duration) error {
	if !c.HasChannel(chatID) {
		return fmt.Errorf("console cannot type in chat %q", chatID)
	}
	_ = c.println(fmt.Sprintf("(%s is typing...)", c.opts.BotName))
	return waitTyping(ctx, d, d+time.Second, func() {})
}

func (c *ConsoleChannel) println(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, line)
	return err
}
