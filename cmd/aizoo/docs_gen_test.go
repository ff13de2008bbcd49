package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestBuildConfigReferenceMarkdown(t *testing.T) {
	ref, err := buildConfigReferenceMarkdown()
	if err != nil {
		t.Fatalf("build config reference: %v", err)
	}
	for _, want := range []string{
		"| `bot.channel_id` | `string` | `AIZOO_BOT_CHANNEL_ID` |",
		"| `bot.max_conversation_turns` | `int` | `AIZOO_BOT_MAX_CONVERSATION_TURNS` | `10` |",
		"| `bot.peer_markers` | `array<string>` |",
		"| `persona.property_map` | `map<string,string>` | `-` |",
		"| `schedule.expression` | `string` | `AIZOO_SCHEDULE_EXPRESSION` | `\"0 8,12,19,23 * * *\"` |",
	} {
		if !strings.Contains(ref, want) {
			t.Errorf("config reference missing %q", want)
		}
	}
}

func TestGenerateDocumentation_CheckDetectsDrift(t *testing.T) {
	out := t.TempDir()
	rootFactory := func() *cobra.Command { return buildRootCommand(false) }

	if err := generateDocumentation(rootFactory, out, false); err != nil {
		t.Fatalf("generate docs: %v", err)
	}
	for _, rel := range []string{
		filepath.Join("reference", "cli", "aizoo.md"),
		filepath.Join("reference", "cli", "aizoo_persona_check.md"),
		filepath.Join("reference", "man", "aizoo.1"),
		filepath.Join("reference", "config.md"),
	} {
		if _, err := os.Stat(filepath.Join(out, rel)); err != nil {
			t.Errorf("expected generated %s: %v", rel, err)
		}
	}

	if err := generateDocumentation(rootFactory, out, true); err != nil {
		t.Fatalf("fresh docs should pass check: %v", err)
	}

	configRef := filepath.Join(out, "reference", "config.md")
	if err := os.WriteFile(configRef, []byte("stale\n"), 0o644); err != nil {
		t.Fatalf("modify config reference: %v", err)
	}
	err := generateDocumentation(rootFactory, out, true)
	if err == nil || !strings.Contains(err.Error(), "config.md") {
		t.Fatalf("expected drift error naming config.md, got %v", err)
	}
}
