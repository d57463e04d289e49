package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/m4xw311/codexgram/bot"
	"github.com/m4xw311/codexgram/codex"
	"github.com/m4xw311/codexgram/config"
	"github.com/m4xw311/codexgram/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// turn flags
	turnThreadID string
	turnDir      string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "codexgram",
	Short: "Delegate coding instructions to the codex app-server, from a CLI or Telegram",
	Long: `codexgram drives the codex app-server over its stdio JSON protocol.

Run a single instruction with "codexgram turn", or start the Telegram bot
with "codexgram bot" to hold resumable per-project conversations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = config.LoadConfig(configPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var turnCmd = &cobra.Command{
	Use:   "turn [instruction...]",
	Short: "Run one instruction through the codex app-server and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTurn,
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	RunE:  runBot,
}

var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "Manage the directories scanned for projects",
}

var rootsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered roots",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		for _, root := range st.ListRoots() {
			fmt.Println(root)
		}
		return nil
	},
}

var rootsAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a directory and scan it for projects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		added, normalized, err := st.AddRoot(args[0])
		if err != nil {
			return err
		}
		if !added {
			fmt.Printf("Already registered: %s\n", normalized)
			return nil
		}
		fmt.Printf("Added %s (%d project(s) known)\n", normalized, len(st.ListProjects()))
		return nil
	},
}

var rootsRemoveCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Unregister a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		removed, err := st.RemoveRoot(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Println("Not a registered root.")
			return nil
		}
		fmt.Println("Removed.")
		return nil
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Inspect discovered projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		for _, p := range st.ListProjects() {
			fmt.Printf("%s\t%s\n", p.Name, p.Path)
		}
		return nil
	},
}

var projectsRescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Re-walk all roots and refresh the project set",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		count, err := st.Rescan()
		if err != nil {
			return err
		}
		fmt.Printf("%d project(s)\n", count)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overlays ~/.codexgram/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	turnCmd.Flags().StringVar(&turnThreadID, "thread", "", "Resume an existing thread by id")
	turnCmd.Flags().StringVar(&turnDir, "dir", "", "Working directory for the turn (defaults to the current directory)")

	rootsCmd.AddCommand(rootsListCmd, rootsAddCmd, rootsRemoveCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsRescanCmd)
	rootCmd.AddCommand(turnCmd, botCmd, rootsCmd, projectsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newRunner() *codex.Runner {
	return &codex.Runner{
		Command:  cfg.Codex.Command,
		LogDir:   cfg.Codex.LogDir,
		Approval: codex.ApprovalDecision(cfg.Codex.ApprovalPolicy),
		Logger:   logger,
	}
}

func openStore() (*store.Store, error) {
	st := store.New(cfg.Store.DataPath, store.WithIgnoreGlobs(cfg.Store.IgnoreGlobs))
	if err := st.Initialize(); err != nil {
		return nil, err
	}
	return st, nil
}

func runTurn(cmd *cobra.Command, args []string) error {
	instruction := ""
	for i, arg := range args {
		if i > 0 {
			instruction += " "
		}
		instruction += arg
	}

	dir := turnDir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := newRunner().RunTurn(ctx, codex.TurnRequest{
		Instruction: instruction,
		ThreadID:    turnThreadID,
		WorkingDir:  dir,
		Progress: func(label string) {
			fmt.Fprintf(os.Stderr, "[%s]\n", label)
		},
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Reply)
	fmt.Fprintf(os.Stderr, "thread: %s\nlog: %s\n", result.ThreadID, result.LogPath)
	return nil
}

func runBot(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateForBot(); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	var watcher *store.Watcher
	if cfg.Store.WatchRoots {
		watcher = store.NewWatcher(st, logger)
	}

	b, err := bot.New(bot.Options{
		Token:         cfg.Telegram.BotToken,
		AllowedUserID: cfg.Telegram.AllowedUserID,
		Store:         st,
		Runner:        newRunner(),
		Watcher:       watcher,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return b.Run(ctx)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
