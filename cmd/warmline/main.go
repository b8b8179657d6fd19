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

	"warmline/internal/admission"
	"warmline/internal/config"
	"warmline/internal/gemini"
	"warmline/internal/line"
	"warmline/internal/quota"
	"warmline/internal/relay"
	"warmline/internal/server"
	"warmline/internal/session"
	"warmline/internal/shape"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

const version = "1.2.0"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "warmline",
	Short: "warmline - LINE chat relay with a Gemini brain",
	Long: `warmline relays LINE text messages to Gemini and sends back short,
shaped replies in a fixed persona.

Inbound events pass an admission pipeline (dedup, cooldown, daily quotas)
before any generation call; generated text is scrubbed of blocked terms and
clamped to a character budget at a natural sentence boundary.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
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
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// serveCmd runs the webhook server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LINE webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// configInitCmd writes a default config file
var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the warmline version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("warmline %s\n", version)
	},
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// --verbose wins; otherwise the config file picks the level and format.
	if !verbose {
		zc := zap.NewProductionConfig()
		if cfg.Logging.Format == "console" {
			zc = zap.NewDevelopmentConfig()
		}
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err == nil {
			zc.Level = zap.NewAtomicLevelAt(level)
		}
		if rebuilt, err := zc.Build(); err == nil {
			logger = rebuilt
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := session.NewStore(cfg.Limits.HistoryTurns, cfg.SessionIdleTTLDuration())
	ledger := quota.NewLedger(0)
	pipeline := admission.NewPipeline(sessions, ledger, admission.Limits{
		Cooldown:      cfg.CooldownDuration(),
		MaxPerSender:  cfg.Limits.MaxPerSender,
		MaxGlobal:     cfg.Limits.MaxGlobal,
		DedupCapacity: cfg.Limits.DedupCapacity,
	}, logger.Named("admission"))

	var terms *shape.TermList
	if cfg.Reply.BlockedTermsFile != "" {
		terms, err = shape.LoadTermList(cfg.Reply.BlockedTermsFile)
		if err != nil {
			return err
		}
		watcher, err := shape.NewTermWatcher(terms, logger.Named("terms"))
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			logger.Warn("term watcher disabled", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	} else {
		terms = shape.NewTermList()
	}

	generator, err := gemini.NewClient(ctx, gemini.Config{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return err
	}

	deliverer := line.NewClient(cfg.Line.ChannelAccessToken)

	orchestrator := relay.New(
		pipeline,
		sessions,
		ledger,
		terms,
		shape.BudgetPolicy{
			ShortInputRunes: cfg.Reply.ShortInputRunes,
			ShortBudget:     cfg.Reply.ShortBudget,
			LongBudget:      cfg.Reply.LongBudget,
		},
		generator,
		deliverer,
		logger.Named("relay"),
	)

	srv := server.New(cfg.Server.Addr, cfg.Line.ChannelSecret, orchestrator, cfg.ShutdownTimeoutDuration(), logger.Named("server"))

	logger.Info("warmline starting",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("model", generator.Model()),
	)
	return srv.Run(ctx)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "warmline.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd, configInitCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
