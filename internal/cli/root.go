package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dwizi/telegram-relay/internal/app"
	"github.com/dwizi/telegram-relay/internal/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type rootOptions struct {
	envFile string
	level   *slog.LevelVar
}

func (o *rootOptions) envFiles() []string {
	if o.envFile == "" {
		return nil
	}
	return []string{o.envFile}
}

// NewRoot builds the command tree. level, when set, is raised or lowered to the
// configured LOG_LEVEL once configuration is loaded.
func NewRoot(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	opts := &rootOptions{level: level}
	root := &cobra.Command{
		Use:           "telegram-relay",
		Short:         "Telegram LLM bot with GitHub and deployment notification relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")

	root.AddCommand(newServeCommand(logger, opts))
	root.AddCommand(newWebhookCommand(logger, opts))
	root.AddCommand(newVersionCommand())
	return root
}

func newServeCommand(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the notification server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(logger, opts.envFiles()...)
			if err != nil {
				return err
			}
			if opts.level != nil {
				opts.level.Set(cfg.SlogLevel())
			}
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
