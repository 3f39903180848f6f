package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alghanim/agentpulse/analytics"
	"github.com/alghanim/agentpulse/config"
	"github.com/alghanim/agentpulse/handlers"
	"github.com/alghanim/agentpulse/history"
	"github.com/alghanim/agentpulse/metrics"
	"github.com/alghanim/agentpulse/notify"
	"github.com/alghanim/agentpulse/relay"
	"github.com/alghanim/agentpulse/store"
	"github.com/alghanim/agentpulse/websocket"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	configFlag string
	verbose    bool

	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agentpulse",
	Short: "AgentPulse - AI agent registry, live metrics and chat relay",
	Long: `AgentPulse keeps a registry of AI agents, records every chat call
relayed to the upstream model and serves the per-agent dashboard metrics
over HTTP and WebSocket.

Run without arguments to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath = config.ResolvePath(configFlag)
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if configPath != "" {
			logger.Info("loaded config", zap.String("path", configPath))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the WebSocket stream and the chat relay",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cmd.Context(), cfg.Database, logger.Named("store"))
		if err != nil {
			return err
		}
		defer s.Close()
		logger.Info("schema is up to date", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert the agents declared in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cmd.Context(), cfg.Database, logger.Named("store"))
		if err != nil {
			return err
		}
		defer s.Close()
		inserted, updated, err := s.UpsertSeedAgents(cmd.Context(), cfg.Agents)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d agents (%d new, %d refreshed)\n", inserted+updated, inserted, updated)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <agent-id>",
	Short: "Print the dashboard stats of one agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid agent id %q", args[0])
		}
		s, err := store.Open(cmd.Context(), cfg.Database, logger.Named("store"))
		if err != nil {
			return err
		}
		defer s.Close()
		if _, err := s.GetAgent(cmd.Context(), id); err != nil {
			return err
		}
		execs, err := s.ListExecutions(cmd.Context(), id)
		if err != nil {
			return err
		}
		out := struct {
			Stats analytics.Stats `json:"stats"`
			Peak  analytics.Peak  `json:"peak_usage"`
		}{
			Stats: analytics.ComputeStats(execs, handlers.PricingFrom(cfg.Analytics), cfg.Analytics.Location()),
			Peak:  analytics.PeakUsage(execs, cfg.Analytics.Location()),
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func buildLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openHistory picks the chat history backend. An unreachable Redis falls
// back to memory so chat keeps working.
func openHistory(ctx context.Context, hc config.HistoryConfig) (history.Store, func()) {
	if hc.Backend != "redis" {
		return history.NewMemoryStore(hc.MaxMessages), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     hc.RedisAddr,
		Password: hc.RedisPassword,
		DB:       hc.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, chat history kept in memory", zap.String("addr", hc.RedisAddr), zap.Error(err))
		_ = client.Close()
		return history.NewMemoryStore(hc.MaxMessages), func() {}
	}
	logger.Info("chat history in redis", zap.String("addr", hc.RedisAddr))
	return history.NewRedisStore(client, hc.MaxMessages, hc.TTL), func() { _ = client.Close() }
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.Database, logger.Named("store"))
	if err != nil {
		return err
	}
	defer s.Close()

	if _, _, err := s.UpsertSeedAgents(ctx, cfg.Agents); err != nil {
		logger.Warn("failed to seed agents from config", zap.Error(err))
	}

	m := metrics.New()
	hub := websocket.NewHub(logger.Named("ws"), m)
	hist, closeHistory := openHistory(ctx, cfg.History)
	defer closeHistory()

	if cfg.Relay.APIKey == "" {
		logger.Warn("LLM_API_KEY not set, upstream calls will be rejected")
	}
	pricing := handlers.PricingFrom(cfg.Analytics)
	chatRelay, err := relay.New(relay.OptionsFromConfig(cfg), relay.Deps{
		Completer: relay.NewOpenAICompleter(cfg.Relay),
		Store:     s,
		History:   hist,
		Notifier:  notify.FromConfig(cfg.Alerts, logger.Named("notify")),
		Publisher: &handlers.LivePublisher{
			Store:    s,
			Hub:      hub,
			Pricing:  pricing,
			Location: cfg.Analytics.Location(),
			Logger:   logger.Named("live"),
		},
		Metrics: m,
		Logger:  logger.Named("relay"),
	})
	if err != nil {
		return err
	}

	router, err := handlers.NewRouter(handlers.Deps{
		Config:  cfg,
		Store:   s,
		Relay:   chatRelay,
		Hub:     hub,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("AgentPulse API starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("model", cfg.Relay.Model),
			zap.String("history", cfg.History.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		err := server.Shutdown(shutdownCtx)
		chatRelay.Wait()
		return err
	})
	g.Go(func() error {
		config.WatchSIGHUP(gctx, configPath, func(next *config.Config, err error) {
			if err != nil {
				logger.Warn("config reload failed", zap.Error(err))
				return
			}
			if _, _, err := s.UpsertSeedAgents(gctx, next.Agents); err != nil {
				logger.Warn("reseed after reload failed", zap.Error(err))
			}
		})
		return nil
	})
	return g.Wait()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to agentpulse.yaml (or set AGENTPULSE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
