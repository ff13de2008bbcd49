package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotsetgreg/aizoo/pkg/config"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand(false)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeTestConfig(t *testing.T, mutate func(cfg *config.Config)) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Persona.CacheDB = ""
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := config.SaveConfig(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func TestCLIHelp_ListsCommands(t *testing.T) {
	output, err := runRootCommandForTest("--help")
	if err != nil {
		t.Fatalf("execute --help: %v\nOutput:\n%s", err, output)
	}
	for _, want := range []string{"onboard", "bot", "chat", "announce", "persona", "status", "version", "--config"} {
		if !strings.Contains(output, want) {
			t.Errorf("root help missing %q\n%s", want, output)
		}
	}
	if strings.Contains(output, "docs") {
		t.Errorf("root help should not list the docs command\n%s", output)
	}
}

func TestCLIHelp_Subcommands(t *testing.T) {
	cases := map[string][]string{
		"chat":     {"--instant", "--user"},
		"announce": {"announce [text...]", "--channel"},
		"persona":  {"check"},
		"onboard":  {"--force"},
	}
	for name, wants := range cases {
		output, err := runRootCommandForTest(name, "--help")
		if err != nil {
			t.Fatalf("execute %s --help: %v", name, err)
		}
		for _, want := range wants {
			if !strings.Contains(output, want) {
				t.Errorf("%s help missing %q\n%s", name, want, output)
			}
		}
	}
}

func TestRoot_RequiresSubcommand(t *testing.T) {
	if _, err := runRootCommandForTest(); err == nil {
		t.Fatal("expected an error without a subcommand")
	}
}

func TestVersionCommand(t *testing.T) {
	output, err := runRootCommandForTest("version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(output, "aizoo dev") {
		t.Errorf("unexpected version output %q", output)
	}

	flagOutput, err := runRootCommandForTest("--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if flagOutput != output {
		t.Errorf("--version = %q, version = %q", flagOutput, output)
	}
}

func TestFormatVersion_WithCommit(t *testing.T) {
	prev := gitCommit
	gitCommit = "abc123"
	t.Cleanup(func() { gitCommit = prev })

	if got := formatVersion(); got != "dev (git: abc123)" {
		t.Errorf("formatVersion = %q", got)
	}
}

func TestOnboard_ForceWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	output, err := runRootCommandForTest("onboard", "--config", path, "--force")
	if err != nil {
		t.Fatalf("onboard: %v\n%s", err, output)
	}
	if !strings.Contains(output, "aizoo is ready!") {
		t.Errorf("unexpected onboard output:\n%s", output)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Bot.MaxConversationTurns != config.DefaultConfig().Bot.MaxConversationTurns {
		t.Errorf("written config does not carry defaults")
	}
}

func TestOnboard_ExistingConfigAborts(t *testing.T) {
	path := writeTestConfig(t, func(cfg *config.Config) { cfg.Bot.Name = "Keep Me" })

	output, err := runRootCommandForTest("onboard", "--config", path)
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if !strings.Contains(output, "Aborted.") {
		t.Errorf("expected abort without confirmation:\n%s", output)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Bot.Name != "Keep Me" {
		t.Errorf("config was overwritten: name = %q", cfg.Bot.Name)
	}
}

func TestStatusCommand(t *testing.T) {
	path := writeTestConfig(t, func(cfg *config.Config) {
		cfg.Bot.Name = "Claude Animal"
		cfg.Bot.IdentityKey = "claude-animal"
		cfg.LLM.DefaultModel = "claude-3-haiku"
	})

	output, err := runRootCommandForTest("status", "--config", path)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"Config: " + path + " ✓",
		`Bot: Claude Animal (identity key "claude-animal")`,
		"Default model: claude-3-haiku (anthropic)",
		"Schedule: disabled",
		"Config check: ✓",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q\n%s", want, output)
		}
	}
}

func TestPersonaCheck_FileSource(t *testing.T) {
	dir := t.TempDir()
	personaPath := filepath.Join(dir, "personas.yaml")
	yaml := `
personas:
  - name: Kitsune
    identity_key: gpt-4o-animal
    personality: Curious
    model: gpt-4o
`
	if err := os.WriteFile(personaPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write personas: %v", err)
	}
	path := writeTestConfig(t, func(cfg *config.Config) {
		cfg.Bot.Name = "Fallback Bot"
		cfg.Bot.IdentityKey = "gpt-4o-animal"
		cfg.Persona.File = personaPath
	})

	output, err := runRootCommandForTest("persona", "check", "--config", path)
	if err != nil {
		t.Fatalf("persona check: %v\n%s", err, output)
	}
	for _, want := range []string{"== gpt-4o-animal ==", "Hello! I'm Kitsune.", "Personality: Curious", "Model: gpt-4o"} {
		if !strings.Contains(output, want) {
			t.Errorf("persona check output missing %q\n%s", want, output)
		}
	}

	output, err = runRootCommandForTest("persona", "check", "--config", path, "unknown-animal")
	if err != nil {
		t.Fatalf("persona check unknown: %v", err)
	}
	if !strings.Contains(output, "Hello! I'm Fallback Bot.") {
		t.Errorf("unknown persona should fall back to the default\n%s", output)
	}
}

func TestBot_RejectsInvalidConfig(t *testing.T) {
	path := writeTestConfig(t, func(cfg *config.Config) {
		cfg.Bot.MinCooldownMinutes = 9
		cfg.Bot.MaxCooldownMinutes = 1
	})

	_, err := runRootCommandForTest("bot", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "configuration error") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
