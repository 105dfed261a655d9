package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"talkbot/internal"
	"talkbot/internal/ai"
	"talkbot/internal/ai/tools"
	"talkbot/internal/archive"
	"talkbot/internal/config"
	"talkbot/internal/initialization"
	"talkbot/internal/logger"
	"talkbot/internal/transport"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "talkbot",
		Short:         "talkbot - a manager AI that talks to a worker AI on your behalf",
		Version:       internal.BOT_VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or "+internal.DEFAULT_CONFIG_PATH+")")

	root.AddCommand(
		newTerminalCmd(),
		newIRCCmd(),
		newTelegramCmd(),
		newWebSocketCmd(),
		newDirectCmd(),
		newSessionsCmd(),
		newSchemaCmd(),
		newInitCmd(),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigs:
			logger.Infof("Shutdown signal received, exiting...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}

func newTerminalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminal [purpose]",
		Short: "Hold one conversation in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initialization.Initialize(configPath, "terminal")
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signalContext()
			defer cancel()

			term := transport.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
			_, err = term.Run(ctx, app.Runner(), strings.Join(args, " "))
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		},
	}
}

func newIRCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "irc",
		Short: "Serve conversations on IRC",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initialization.Initialize(configPath, "irc")
			if err != nil {
				return err
			}
			defer app.Close()

			if err := config.ValidateIRC(&app.Config.IRC); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return transport.NewIRC(app.Config.IRC, app.Runner()).Run(ctx)
		},
	}
}

func newTelegramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Serve conversations on Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initialization.Initialize(configPath, "telegram")
			if err != nil {
				return err
			}
			defer app.Close()

			if err := config.ValidateTelegram(&app.Config.Telegram); err != nil {
				return err
			}
			bot, err := transport.NewTelegram(app.Config.Telegram, app.Runner())
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return bot.Run(ctx)
		},
	}
}

func newWebSocketCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "websocket",
		Short: "Serve conversations over a WebSocket endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initialization.Initialize(configPath, "websocket")
			if err != nil {
				return err
			}
			defer app.Close()

			if addr != "" {
				app.Config.WebSocket.ListenAddr = addr
			}

			ctx, cancel := signalContext()
			defer cancel()
			return transport.NewWebSocket(app.Config.WebSocket, app.Runner()).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides websocket.listen_addr)")
	return cmd
}

func newDirectCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "direct <purpose>",
		Short: "Answer a purpose with one worker call and no manager",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initialization.LoadConfig(configPath)
			if err != nil {
				return err
			}
			defer logger.CloseLogFile()

			provider, err := ai.NewProvider(cfg.AI)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			answer, err := ai.Direct(ctx, provider, ai.WorkerSettings(cfg), strings.Join(args, " "))
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(answer), 0644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				logger.Successf("Answer written to %s", output)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the answer to a file")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recently closed sessions from the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initialization.LoadConfig(configPath)
			if err != nil {
				return err
			}
			defer logger.CloseLogFile()

			store, err := archive.Open(cfg.ArchivePath())
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to show")
	return cmd
}

func printSessions(w io.Writer, records []archive.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No archived sessions.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tTURNS\tREASON\tCLOSED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Source, r.Turns, r.Reason, r.ClosedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func newSchemaCmd() *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the talk_to_ai parameter schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tool tools.Tool = tools.NewTalkToAITool()
			if flat {
				tool = tools.NewLegacyTalkToAITool()
			}
			data, err := tools.SchemaJSON(tool)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "print the flat {continue} shape")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.GetConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set OPENAI_API_KEY or ANTHROPIC_API_KEY in the environment or in .env.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
