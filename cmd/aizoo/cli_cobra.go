package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/aizoo/pkg/config"
)

// rootFlags are the persistent flags every subcommand reads.
type rootFlags struct {
	configPath string
	debug      bool
}

func (f *rootFlags) load() (*config.Config, string, error) {
	path := f.configPath
	if strings.TrimSpace(path) == "" {
		path = getConfigPath()
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, path, err
	}
	if err := setupLogging(cfg, f.debug); err != nil {
		return nil, path, fmt.Errorf("logging config: %w", err)
	}
	return cfg, path, nil
}

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "aizoo",
		Short: "Persona chat bot for a shared Discord channel",
		Long: strings.TrimSpace(`aizoo runs one AI persona in a shared Discord channel.

Several aizoo bots can share a channel and talk with people and with each
other. Each bot plays a persona loaded from Notion or a YAML file, replies
after a human-like delay, and cools down after a burst of conversation.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default ~/.aizoo/config.json)")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand(flags))
	root.AddCommand(newBotCommand(flags))
	root.AddCommand(newChatCommand(flags))
	root.AddCommand(newAnnounceCommand(flags))
	root.AddCommand(newPersonaCommand(flags))
	root.AddCommand(newStatusCommand(flags))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func newOnboardCommand(flags *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "onboard",
		Short:   "Write a default config file",
		Long:    "Create a default configuration file for a new aizoo bot.",
		Example: "  aizoo onboard\n  aizoo onboard --config ./claude-animal.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if strings.TrimSpace(path) == "" {
				path = getConfigPath()
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(path); err == nil && !force {
				fmt.Fprintf(out, "Config already exists at %s\n", path)
				fmt.Fprint(out, "Overwrite? (y/n): ")
				reader := bufio.NewReader(cmd.InOrStdin())
				response, readErr := reader.ReadString('\n')
				if readErr != nil {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Fprintf(out, "%s is ready!\n", appName)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Set bot.name, bot.channel_id and channels.discord.token in", path)
			fmt.Fprintln(out, "  2. Add providers.openai.api_key or providers.anthropic.api_key")
			fmt.Fprintln(out, "  3. (Optional) Point persona.notion_* or persona.file at your personas")
			fmt.Fprintln(out, "  4. Try it locally: aizoo chat --instant")
			fmt.Fprintln(out, "  5. Run the bot: aizoo bot")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config without asking")
	return cmd
}

func newBotCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the bot on Discord with health endpoints",
		Long: strings.TrimSpace(`Connect to Discord, post the persona introduction to the configured channel
and reply to conversation there. Health endpoints are served on gateway.host:port
and scheduled conversation starters run when schedule.enabled is set.`),
		Example: "  aizoo bot\n  aizoo bot --config ./gpt-animal.json --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			return runBot(cfg, cmd.OutOrStdout())
		},
	}
}

func newChatCommand(flags *rootFlags) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from the terminal",
		Long:  "Run the bot against a local console instead of Discord. Cooldown, commands and persona behave as they do on Discord.",
		Example: strings.Join([]string{
			"  aizoo chat",
			"  aizoo chat --instant --user Claude-Animal",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			return runChat(cfg, opts, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.instant, "instant", false, "Skip the response delay and typing time")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "Display name to chat as")
	return cmd
}

func newAnnounceCommand(flags *rootFlags) *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "announce [text...]",
		Short: "Post one message to the channel and exit",
		Long:  "Connect to Discord, post the given text (or a greeting for the current time of day) and disconnect.",
		Example: strings.Join([]string{
			"  aizoo announce",
			"  aizoo announce \"Maintenance in 10 minutes\"",
			"  aizoo announce --channel 123456789012345678 hello",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			return runAnnounce(cfg, strings.Join(args, " "), chatID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&chatID, "channel", "", "Channel ID (default schedule.channel_id, then bot.channel_id)")
	return cmd
}

func newPersonaCommand(flags *rootFlags) *cobra.Command {
	personaCmd := &cobra.Command{
		Use:   "persona",
		Short: "Inspect persona definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	personaCmd.AddCommand(&cobra.Command{
		Use:   "check [names...]",
		Short: "Resolve personas and print their introductions",
		Long:  "Look up each name in the configured persona source. Without names the bot's own identity key is checked, or every row when Notion is configured.",
		Example: strings.Join([]string{
			"  aizoo persona check",
			"  aizoo persona check claude-animal gpt-4o-animal",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			return runPersonaCheck(cmd.Context(), cfg, args, cmd.OutOrStdout())
		},
	})

	return personaCmd
}

func newStatusCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show config and credential readiness",
		Example: "  aizoo status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := flags.load()
			if err != nil {
				return err
			}
			printStatus(cfg, path, cmd.OutOrStdout())
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Example: "  aizoo version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
