package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/api"
	"github.com/blogboost/ranktracker/internal/archive"
	"github.com/blogboost/ranktracker/internal/billing"
	"github.com/blogboost/ranktracker/internal/cache"
	"github.com/blogboost/ranktracker/internal/clock/system"
	"github.com/blogboost/ranktracker/internal/collect"
	"github.com/blogboost/ranktracker/internal/config"
	"github.com/blogboost/ranktracker/internal/events"
	"github.com/blogboost/ranktracker/internal/fetch"
	iduuid "github.com/blogboost/ranktracker/internal/id/uuid"
	"github.com/blogboost/ranktracker/internal/logging"
	"github.com/blogboost/ranktracker/internal/naver"
	"github.com/blogboost/ranktracker/internal/rank"
	"github.com/blogboost/ranktracker/internal/sched"
	memstore "github.com/blogboost/ranktracker/internal/store/memory"
	"github.com/blogboost/ranktracker/internal/store/postgres"
	"github.com/blogboost/ranktracker/internal/throttle"
	"github.com/blogboost/ranktracker/internal/tracking"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP API and
// the cron scheduler.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the rank tracking service",
		Long: `Runs the HTTP API for collection, tracking subscriptions and rank
histories. With scheduler.enabled set, the daily collection sweep and the
billing maintenance tasks fire on their cron schedules.`,

		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	logger := logging.L

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	apiServer := api.NewServer(svc.collector, svc.trackings, svc.scheduler, svc.ready, cfg, logger.Named("api"))

	if cfg.Scheduler.Enabled {
		svc.scheduler.Start()
		defer svc.scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// services bundles the wired subsystems the commands run against.
type services struct {
	collector *collect.Service
	trackings *tracking.Service
	tasks     *sched.Tasks
	scheduler *sched.Scheduler
	pacer     *throttle.Pacer
	ready     func(ctx context.Context) error

	closers []func()
}

// Close releases held resources in reverse construction order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildServices(ctx context.Context, cfg config.Config, logger *zap.Logger) (*services, error) {
	svc := &services{}

	var (
		snapStore  rank.SnapshotStore
		trackStore rank.TrackingStore
		runStore   rank.TaskRunStore
	)
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory stores; data is lost on exit")
		snapStore = memstore.NewSnapshotStore()
		trackStore = memstore.NewTrackingStore()
		runStore = memstore.NewTaskRunStore()
	} else {
		pool, err := postgres.Connect(ctx, cfg.DB.DSN, int32(cfg.DB.MaxOpenConns))
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, pool.Close)
		svc.ready = pool.Ping
		snapStore = postgres.NewSnapshotStore(pool)
		trackStore = postgres.NewTrackingStore(pool)
		runStore = postgres.NewTaskRunStore(pool)
	}

	fetcher := buildFetcher(cfg, svc, logger)
	search := naver.New(naver.Config{
		ClientID:     cfg.Naver.ClientID,
		ClientSecret: cfg.Naver.ClientSecret,
		Endpoint:     cfg.Naver.Endpoint,
		Timeout:      cfg.ProviderTimeout(),
	}, fetcher, logger.Named("naver"))

	arch, err := buildArchive(ctx, cfg, svc, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}
	publisher, err := buildPublisher(ctx, cfg, svc, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}

	historyCache := cache.NewRedis(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.HistoryTTL(),
	}, logger.Named("cache"))
	svc.closers = append(svc.closers, func() {
		if cerr := historyCache.Close(); cerr != nil {
			logger.Warn("close history cache", zap.Error(cerr))
		}
	})

	clk := system.New()
	svc.collector = collect.New(
		collect.Config{Timezone: cfg.Location(), DefaultSize: cfg.Collector.DefaultSize},
		collect.Deps{
			Search:  search,
			Store:   snapStore,
			Archive: arch,
			Events:  publisher,
			Cache:   historyCache,
			Clock:   clk,
		},
		logger.Named("collect"),
	)

	billingClient, err := buildBilling(cfg, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.trackings = tracking.New(
		tracking.Config{
			Timezone:    cfg.Location(),
			HistoryDays: cfg.Collector.HistoryDays,
			DefaultSize: cfg.Collector.DefaultSize,
		},
		tracking.Deps{
			Store:     trackStore,
			Snapshots: snapStore,
			Collector: svc.collector,
			Billing:   billingClient,
			Cache:     historyCache,
			Clock:     clk,
		},
		logger.Named("tracking"),
	)

	svc.pacer = throttle.New(cfg.Throttle())
	svc.tasks = sched.NewTasks(sched.Deps{
		Runs:      runStore,
		IDs:       iduuid.NewUUIDGenerator(),
		Collector: svc.collector,
		Trackings: trackStore,
		Billing:   billingClient,
		Pacer:     svc.pacer,
		Clock:     clk,
	}, logger.Named("sched"))

	specs := sched.Specs{}
	if cfg.Scheduler.Enabled {
		specs = sched.Specs{
			Collection: cfg.Scheduler.CollectionSpec,
			Renewal:    cfg.Scheduler.RenewalSpec,
			Payment:    cfg.Scheduler.PaymentSpec,
		}
	}
	scheduler, err := sched.NewScheduler(svc.tasks, specs, logger.Named("sched"))
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.scheduler = scheduler

	return svc, nil
}

// buildFetcher assembles the content fetcher, promoting to headless
// rendering when configured. Renderer startup trouble degrades to the
// fast path: content enrichment is best effort, rank data is not.
func buildFetcher(cfg config.Config, svc *services, logger *zap.Logger) *fetch.Fetcher {
	var (
		detector fetch.Detector
		renderer fetch.Renderer
	)
	if cfg.Render.Enabled {
		r, err := fetch.NewChromedpRenderer(fetch.RenderConfig{
			UserAgent:   cfg.Fetch.UserAgent,
			MaxParallel: cfg.Render.MaxParallel,
			NavTimeout:  time.Duration(cfg.Render.NavTimeoutSec) * time.Second,
			DomainQPS:   cfg.Render.DomainQPS,
		}, logger.Named("render"))
		switch {
		case err == nil:
			renderer = r
			detector = fetch.NewHeuristicDetector(cfg.Render.MinHTMLBytes, cfg.Render.ShellKeywords)
			svc.closers = append(svc.closers, func() {
				if cerr := r.Close(); cerr != nil {
					logger.Warn("close renderer", zap.Error(cerr))
				}
			})
		case errors.Is(err, fetch.ErrRendererDisabled):
			logger.Warn("renderer disabled despite feature flag, keeping fast path")
		default:
			logger.Warn("headless renderer init failed, keeping fast path", zap.Error(err))
		}
	}

	return fetch.New(fetch.Config{
		UserAgent:       cfg.Fetch.UserAgent,
		Timeout:         cfg.FetchTimeout(),
		ExcerptMaxChars: cfg.Fetch.ExcerptMaxChars,
	}, detector, renderer, logger.Named("fetch"))
}

func buildArchive(ctx context.Context, cfg config.Config, svc *services, logger *zap.Logger) (rank.Archive, error) {
	switch cfg.Archive.Provider {
	case "", "noop":
		return archive.Noop{}, nil
	case "memory":
		return archive.NewMemory(), nil
	case "gcs":
		g, err := archive.NewGCS(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		svc.closers = append(svc.closers, func() {
			if cerr := g.Close(); cerr != nil {
				logger.Warn("close archive", zap.Error(cerr))
			}
		})
		return g, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, svc *services, logger *zap.Logger) (rank.Publisher, error) {
	switch cfg.Events.Provider {
	case "", "noop":
		return events.Noop{}, nil
	case "memory":
		return events.NewMemory(), nil
	case "pubsub":
		p, err := events.NewPubSub(ctx, cfg.Events.ProjectID, cfg.Events.Topic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		svc.closers = append(svc.closers, func() {
			if cerr := p.Close(); cerr != nil {
				logger.Warn("close publisher", zap.Error(cerr))
			}
		})
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}

func buildBilling(cfg config.Config, logger *zap.Logger) (rank.BillingClient, error) {
	if cfg.Billing.BaseURL == "" {
		logger.Info("no billing service configured, granting unlimited tracking")
		return billing.Open{}, nil
	}
	client, err := billing.New(billing.Config{
		BaseURL: cfg.Billing.BaseURL,
		APIKey:  cfg.Billing.APIKey,
		Timeout: time.Duration(cfg.Billing.TimeoutSeconds) * time.Second,
	}, logger.Named("billing"))
	if err != nil {
		return nil, fmt.Errorf("init billing client: %w", err)
	}
	return client, nil
}
