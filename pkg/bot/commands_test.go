package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_StatusRecordedNotCounted(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})

	h.say("Alice", "hello")
	h.say("Alice", "!status")

	sent := h.gw.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Kitsune is ACTIVE. Turns: 1/3. History: 3/10.", sent[1].Text)
	assert.Equal(t, 1, h.bot.Store().TurnCount())
	assert.Len(t, h.gen.Calls(), 1, "commands never reach the backend")
}

func TestCommand_AnsweredWhileCoolingDown(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	for _, m := range []string{"one", "two", "three"} {
		h.say("Alice", m)
	}
	require.True(t, h.bot.Cooldown().IsCoolingDown())

	h.say("Alice", "!STATUS")

	sent := h.gw.Sent()
	assert.Contains(t, sent[len(sent)-1].Text, "COOLING_DOWN (resumes in 1m0s)")
}

func TestCommand_IntroAndUnknown(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})

	h.say("Alice", "!intro")
	h.say("Alice", "!dance")
	h.say("Alice", "!")

	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0].Text, "Hello! I'm Kitsune."))
	assert.Equal(t, 3, h.bot.Store().Len())
	assert.Equal(t, 0, h.bot.Store().TurnCount())
}

func TestCommand_ResetClearsHistory(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})

	h.say("Alice", "hello")
	h.say("Bob", "hi")
	require.Equal(t, 2, h.bot.Store().TurnCount())

	h.say("Alice", "!reset")

	sent := h.gw.Sent()
	assert.Equal(t, "Conversation history cleared.", sent[len(sent)-1].Text)
	assert.Equal(t, 0, h.bot.Store().Len())
	assert.Equal(t, 0, h.bot.Store().TurnCount())
	assert.Equal(t, "ACTIVE", h.bot.Status().State)
}
