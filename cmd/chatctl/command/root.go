package command

// root.go defines the root command for chatctl, the operator tool for the chat backend.
// Every subcommand reads the same environment as the API server and worker.

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"geminichat/database"
	"geminichat/internal/config"
	"geminichat/internal/logging"
)

// env is what subcommands share once the root pre-run has loaded configuration.
type env struct {
	cfg *config.Config
	log *slog.Logger
}

// connectors are swapped in tests.
var (
	openRedis = func(cfg *config.Config, log *slog.Logger) (redis.UniversalClient, error) {
		return database.ConnectRedis(cfg, log)
	}
	openDB = func(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
		return database.Connect(cfg, log)
	}
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	keyColor  = color.New(color.FgCyan)
)

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "chatctl - operate the chat backend",
		Long: `chatctl inspects and repairs the chat backend's shared state:
schema migrations, daily message quotas and the generation task streams.

Configuration comes from the environment (and .env), exactly as for the servers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = logging.New(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	root.AddCommand(newMigrateCmd(e), newQuotaCmd(e), newTaskCmd(e), newStreamCmd(e))
	return root
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
