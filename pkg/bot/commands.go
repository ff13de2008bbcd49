package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

func (o *Orchestrator) isCommand(content string) bool {
	return o.opts.CommandPrefix != "" && strings.HasPrefix(content, o.opts.CommandPrefix)
}

// handleCommand runs a prefixed chat command. Commands are answered even
// while cooling down and never count as turns.
func (o *Orchestrator) handleCommand(ctx context.Context, msg bus.InboundMessage) {
	fields := strings.Fields(strings.TrimPrefix(msg.Content, o.opts.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])

	var err error
	switch name {
	case "status":
		err = o.gateway.Send(ctx, msg.ChatID, o.statusText())
	case "intro":
		err = o.postIntroduction(ctx, msg.ChatID)
	case "reset":
		o.store.Clear()
		logger.InfoCF("bot", "History cleared", map[string]any{"sender": msg.DisplayName})
		err = o.gateway.Send(ctx, msg.ChatID, "Conversation history cleared.")
	default:
		logger.DebugCF("bot", "Ignoring unknown command", map[string]any{
			"command": name,
			"sender":  msg.DisplayName,
		})
		return
	}
	if err != nil {
		logger.ErrorCF("bot", "Command failed", map[string]any{
			"command": name,
			"error":   err.Error(),
		})
	}
}

func (o *Orchestrator) statusText() string {
	p, _ := o.currentPersona()
	return fmt.Sprintf("%s is %s. Turns: %d/%d. History: %d/%d.",
		p.Name(),
		o.cooldown.Status().Describe(o.cooldown.Now()),
		o.store.TurnCount(), o.opts.MaxTurns,
		o.store.Len(), o.store.Limit(),
	)
}
