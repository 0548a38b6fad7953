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
	"golang.org/x/sync/errgroup"

	"deepchat/internal/chat"
	"deepchat/internal/config"
	"deepchat/internal/deepseek"
	"deepchat/internal/metrics"
	"deepchat/internal/prompt"
	"deepchat/internal/server"
	"deepchat/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiKey     string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "deepchat",
	Short: "deepchat - conversational session manager for the DeepSeek API",
	Long: `deepchat manages chat sessions against a remote completion service:
session lifecycle, context-window assembly, message persistence, streaming
relay, and personality injection via system prompts.

Run 'deepchat serve' to start the HTTP API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the HTTP server with the background retention sweeper.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	RunE:  runServe,
}

// sweepCmd runs one retention sweep and exits.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete conversations older than the retention age, then exit",
	RunE:  runSweep,
}

// promptsCmd lists the available personas.
var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List available system prompts",
	RunE:  runPrompts,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "deepchat.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "DeepSeek API key (or set DEEPCHAT_API_KEY env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(promptsCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.DeepSeek.APIKey = apiKey
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.New()

	st := store.New(
		store.WithPath(cfg.Storage.DataFile),
		store.WithFlushEvery(cfg.Storage.FlushEvery),
		store.WithLogger(logger.Named("store")),
		store.WithMetrics(m),
	)

	registry := prompt.NewRegistry(
		prompt.WithFile(cfg.Prompts.CustomFile),
		prompt.WithLogger(logger.Named("prompt")),
	)

	client := deepseek.NewClient(deepseek.Config{
		APIKey:  cfg.DeepSeek.APIKey,
		BaseURL: cfg.DeepSeek.BaseURL,
		Timeout: cfg.GetCompletionTimeout(),
	}, logger.Named("deepseek"))

	engine := chat.NewService(st, registry, client, chat.Config{
		WindowSize: cfg.Chat.WindowSize,
		Completion: deepseek.Options{
			Model:       cfg.DeepSeek.Model,
			Temperature: cfg.DeepSeek.Temperature,
			MaxTokens:   cfg.DeepSeek.MaxTokens,
		},
	}, logger.Named("chat"), m)

	srv := server.NewServer(server.Config{ListenAddr: cfg.Server.ListenAddr},
		engine, registry, logger.Named("server"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return srv.Start()
	})

	eg.Go(func() error {
		st.RunSweeper(egCtx, cfg.GetSweepInterval(), cfg.GetRetentionAge())
		return nil
	})

	if cfg.Prompts.Watch {
		watcher, err := prompt.NewWatcher(registry, logger.Named("watcher"))
		if err != nil {
			logger.Warn("prompt watcher unavailable", zap.Error(err))
		} else if err := watcher.Start(egCtx); err != nil {
			logger.Warn("prompt watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("deepchat started", zap.String("addr", cfg.Server.ListenAddr))
	err = eg.Wait()

	if closeErr := st.Close(); closeErr != nil {
		logger.Error("final flush failed", zap.Error(closeErr))
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(
		store.WithPath(cfg.Storage.DataFile),
		store.WithLogger(logger.Named("store")),
	)

	deleted := st.SweepExpired(cfg.GetRetentionAge())
	fmt.Printf("Swept %d expired conversations (%d remaining)\n", deleted, st.Len())

	return st.Close()
}

func runPrompts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry := prompt.NewRegistry(prompt.WithFile(cfg.Prompts.CustomFile))
	for _, tpl := range registry.List() {
		fmt.Printf("%s %s (%s)\n    %s\n", tpl.Icon, tpl.Name, tpl.ID, tpl.Description)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
