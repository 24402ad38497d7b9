package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"storebot/internal/assistant"
	"storebot/internal/backend"
	"storebot/internal/catalog"
	"storebot/internal/config"
	"storebot/internal/consumer"
	"storebot/internal/conversation"
	"storebot/internal/database"
	"storebot/internal/handler"
	"storebot/internal/monitor"
	"storebot/internal/redis"
	"storebot/internal/repository"
	"storebot/internal/resolver"
	"storebot/internal/session"
	"storebot/internal/support"
	"storebot/pkg/breaker"
	"storebot/pkg/limiter"
	"storebot/pkg/lock"
	"storebot/pkg/log"
	"storebot/pkg/queue"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.WithError(err).Fatal("Failed to initialize logger")
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	log.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config) error {
	tracer, err := monitor.NewTracer(&monitor.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: handler.Version,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	var metrics *monitor.MetricsCollector
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetricsCollector(nil)
	}

	breakers := breaker.NewManager(breaker.Config{
		MaxRequests: cfg.CircuitBreak.MaxRequests,
		Interval:    cfg.CircuitBreak.Interval,
		Timeout:     cfg.CircuitBreak.Timeout,
		ReadyToTrip: func(counts breaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CircuitBreak.ConsecutiveFailures
		},
		IsSuccessful: backend.CountsAsSuccess,
		OnStateChange: func(name string, from, to breaker.State) {
			metrics.SetBreakerState(name, int(to))
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	client, err := backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		UserAgent: cfg.Backend.UserAgent,
		MaxBody:   cfg.Backend.MaxBody,
	}, breakers, metrics)
	if err != nil {
		return err
	}

	catalogSvc, err := catalog.New(ctx, client, catalog.Config{
		TTL:        cfg.Cache.TTL,
		MaxSizeMB:  cfg.Cache.MaxSizeMB,
		MaxResults: cfg.Cache.MaxResults,
	}, metrics)
	if err != nil {
		return err
	}
	defer catalogSvc.Close()

	bot := assistant.New(assistant.Config{
		APIKey:       cfg.Assistant.APIKey,
		BaseURL:      cfg.Assistant.BaseURL,
		Model:        cfg.Assistant.Model,
		MaxTokens:    cfg.Assistant.MaxTokens,
		Temperature:  cfg.Assistant.Temperature,
		Timeout:      cfg.Assistant.Timeout,
		SystemPrompt: cfg.Assistant.SystemPrompt,
		HistoryTurns: cfg.Assistant.HistoryTurns,
	}, metrics)
	if !bot.Enabled() {
		log.Info("Assistant API key not set, unmatched messages get the menu")
	}

	deps := conversation.Deps{
		Orders: resolver.New(client, resolver.Config{
			MaxPages:    cfg.Chat.MaxPages,
			RecentLimit: cfg.Chat.RecentLimit,
		}, metrics),
		Catalog:     catalogSvc,
		Support:     support.New(client, cfg.Chat.MaxFAQs),
		Assistant:   bot,
		Metrics:     metrics,
		MaxPages:    cfg.Chat.MaxPages,
		RecentLimit: cfg.Chat.RecentLimit,
		RewardCode:  cfg.Chat.RewardCode,
		Reminder: conversation.ReminderConfig{
			Default: cfg.Chat.Reminder.Default,
			Min:     cfg.Chat.Reminder.Min,
			Max:     cfg.Chat.Reminder.Max,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	checks := map[string]handler.HealthCheck{}

	// Redis is optional: it shares session limits and the retention lease
	// across replicas
	rdb := connectRedis(cfg)
	if rdb != nil {
		defer redis.Close()
		checks["redis"] = redis.Health
	}

	// transcripts: sessions -> queue -> consumer -> MySQL
	var mq *queue.MemoryQueue
	if cfg.Archive.Enabled {
		if !cfg.Database.Enabled {
			return errors.New("archive requires database.enabled")
		}
		db, err := database.Init(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()
		if cfg.Database.AutoMigrate {
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
		}
		checks["database"] = database.Health

		mq, err = queue.NewMemoryQueue(&queue.MemoryQueueConfig{
			BufferSize:    cfg.Queue.BufferSize,
			Topic:         cfg.Queue.Topic,
			ConsumerGroup: cfg.Queue.ConsumerGroup,
			Timeout:       cfg.Queue.Timeout,
		})
		if err != nil {
			return err
		}
		checks["queue"] = func(context.Context) error { return mq.Health() }

		archiver := consumer.NewArchiveConsumer(
			repository.NewTranscriptRepository(db), mq, cfg.Queue.Topic, cfg.Archive.Retention, metrics)
		if rdb != nil {
			archiver.WithLease(lock.NewRedisLock(rdb, "transcript-retention", 10*time.Minute))
		}
		// outlives gctx so the transcripts published at shutdown are drained;
		// the subscriber exits once mq is closed and empty
		consumeCtx, cancelConsume := context.WithCancel(context.WithoutCancel(ctx))
		defer cancelConsume()
		if err := archiver.Start(consumeCtx); err != nil {
			return err
		}
		g.Go(func() error { return archiver.RunRetention(gctx, time.Hour) })
	}

	var sessionQueue queue.Queue
	if mq != nil {
		sessionQueue = mq
	}
	sessions := session.NewManager(deps, sessionQueue, session.Config{
		IdleTTL:       cfg.Chat.SessionIdleTTL,
		SweepInterval: cfg.Chat.SweepInterval,
		MaxSessions:   cfg.Chat.MaxSessions,
		Topic:         cfg.Queue.Topic,
	}, metrics)

	routerDeps := handler.RouterDeps{
		Chat:           handler.NewChatHandler(sessions),
		SessionWindow:  cfg.RateLimit.PerSession.Window,
		RequestTimeout: cfg.Chat.SendTimeout,
		CORS:           cfg.CORS,
		Tracer:         tracer,
		Metrics:        metrics,
		MetricsPath:    cfg.Metrics.Path,
	}
	if metrics != nil {
		routerDeps.Gatherer = metrics.Gatherer()
	}
	if cfg.RateLimit.Enabled {
		routerDeps.IPLimiter = limiter.NewTokenBucketLimiter(rate.Limit(cfg.RateLimit.PerIP.RPS), cfg.RateLimit.PerIP.Burst)
		routerDeps.SessionLimiter = sessionLimiter(cfg, rdb)
	}
	routerDeps.Health = handler.NewHealthHandler(checks, breakers, sessions)

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        handler.NewRouter(routerDeps),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderMB << 20,
	}

	if err := config.WatchConfig(func(next *config.Config) {
		if err := log.SetLevel(next.Log.Level); err != nil {
			log.WithError(err).Warn("Ignoring invalid log level from reloaded config")
			return
		}
		log.WithField("level", next.Log.Level).Info("Config reloaded")
	}); err != nil {
		log.WithError(err).Warn("Config hot reload disabled")
	}

	g.Go(func() error {
		log.WithFields(log.Fields{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return sessions.Run(gctx) })

	if metrics != nil {
		g.Go(func() error {
			metrics.StartSystemMetricsCollection(gctx, cfg.Metrics.CollectInterval)
			return nil
		})
	}

	err = g.Wait()
	if mq != nil {
		// sessions.Run has published the shutdown transcripts by now
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if derr := mq.Drain(drainCtx); derr != nil {
			log.WithError(derr).Warn("Transcript queue not fully drained")
		}
		cancel()
		_ = mq.Close()
	}
	return err
}

// connectRedis returns nil when Redis is disabled or unreachable.
func connectRedis(cfg *config.Config) *goredis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	client, err := redis.Init(cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, session limits are per replica")
		return nil
	}
	return client
}

// sessionLimiter prefers the shared Redis sliding window and falls back to
// in-process token buckets when Redis is disabled or errors.
func sessionLimiter(cfg *config.Config, rdb *goredis.Client) limiter.RateLimiter {
	perSession := cfg.RateLimit.PerSession
	local := limiter.NewTokenBucketLimiter(
		rate.Every(perSession.Window/time.Duration(max(perSession.Limit, 1))), perSession.Limit)

	if rdb == nil {
		return local
	}
	return &limiter.FallbackLimiter{
		Primary:   limiter.NewSlidingWindowLimiter(rdb, perSession.Limit, perSession.Window),
		Secondary: local,
	}
}
