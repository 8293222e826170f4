// Command server runs the gatehouse registration service. It wires the
// pipeline's collaborators from configuration, falling back to in-memory
// implementations when a backing service is not configured, and keeps the
// server lifecycle small.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"gatehouse/internal/achievement"
	"gatehouse/internal/audit"
	"gatehouse/internal/avatar"
	"gatehouse/internal/notify"
	"gatehouse/internal/permission"
	"gatehouse/internal/platform/config"
	"gatehouse/internal/platform/httpserver"
	"gatehouse/internal/platform/logger"
	platformredis "gatehouse/internal/platform/redis"
	"gatehouse/internal/prereg"
	"gatehouse/internal/registration"
	reghandler "gatehouse/internal/registration/handler"
	regmetrics "gatehouse/internal/registration/metrics"
	"gatehouse/internal/user"
	"gatehouse/internal/verifier/disposable"
	"gatehouse/internal/verifier/gravatar"
	"gatehouse/internal/verifier/spam"
	"gatehouse/pkg/domain"
	"gatehouse/pkg/platform/circuit"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Without a database URL everything runs in memory, which is
	// enough for development and tests but loses state on restart.
	var (
		users      registrationUserStore
		changeLog  audit.ChangeLogger
		ipLog      audit.IPLogger
		permsStore permission.Provider
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		users = user.NewPostgresStore(db)
		pgAudit := audit.NewPostgresStore(db)
		changeLog = pgAudit
		ipLog = pgAudit
		permsStore = permission.NewPostgresProvider(db)
	} else {
		log.Warn("no database configured, using in-memory stores")
		users = user.NewMemoryStore()
		memAudit := audit.NewMemoryStore()
		changeLog = memAudit
		ipLog = memAudit
		memPerms := permission.NewMemoryProvider()
		memPerms.Grant(1, "avatar", "allowed")
		permsStore = memPerms
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Changelog fan-out to Kafka is optional and layered over the store.
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.KafkaBrokers...),
			kgo.DefaultProduceTopic(cfg.ChangelogTopic),
		)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		changeLog = audit.NewPublisher(changeLog, kafkaClient, cfg.ChangelogTopic, log)
	}

	// Verifiers.
	var disposableChecker registration.EmailChecker
	if cfg.Disposable.APIToken != "" {
		opts := []disposable.Option{
			disposable.WithLogger(log),
			disposable.WithBreaker(circuit.New(5, 30*time.Second)),
		}
		if redisClient != nil {
			opts = append(opts, disposable.WithCache(redisClient.Client, cfg.Disposable.CacheTTL))
		}
		disposableChecker = disposable.New(
			cfg.Disposable.BaseURL,
			cfg.Disposable.APIToken,
			cfg.Disposable.Timeout,
			opts...,
		)
	} else {
		log.Warn("disposable email checking disabled, no API token configured")
	}

	spamProviders := []spam.Provider{
		spam.NewEmailDomainProvider(cfg.Spam.EmailDomainDenylist, domain.SpamDecisionDenied),
		spam.NewUsernameProvider(cfg.Spam.UsernameDenylist, domain.SpamDecisionDenied),
	}
	if redisClient != nil {
		spamProviders = append(spamProviders,
			spam.NewVelocityProvider(redisClient.Client, cfg.Spam.VelocityLimit, cfg.Spam.VelocityWindow, log))
	}
	spamChecker := spam.NewUserChecker(spamProviders, spam.WithLogger(log))

	// Notifications and post-commit collaborators.
	preregStore := prereg.NewMemoryStore()
	signingKey := []byte(cfg.ConfirmationSigningKey)
	dispatcher := notify.NewEmailDispatcher(
		notify.NewLogMailer(log),
		preregStore,
		signingKey,
		cfg.BaseURL,
		notify.WithLogger(log),
		notify.WithTokenTTL(cfg.ConfirmationTTL),
	)

	avatars := avatar.New(
		avatar.NewFSStore(cfg.Avatar.StorageDir),
		avatar.WithLogger(log),
		avatar.WithLimits(cfg.Avatar.MaxBytes, cfg.Avatar.TargetPixels),
	)

	achievements := achievement.New(nil, nil, achievement.WithLogger(log))

	deps := registration.Deps{
		Users:        users,
		Spam:         spamChecker,
		Disposable:   disposableChecker,
		Permissions:  permsStore,
		Dispatcher:   dispatcher,
		ChangeLog:    changeLog,
		IPLog:        ipLog,
		PreReg:       preregStore,
		Achievements: achievements,
		Avatars:      avatars,
		Gravatar:     gravatar.Resolve,
	}

	handler := reghandler.New(deps, cfg.Registration, log,
		reghandler.WithMetrics(regmetrics.New()),
		reghandler.WithEmailConfirmation(users, func(token string, now time.Time) (string, error) {
			return notify.ParseConfirmationToken(token, signingKey, now)
		}),
	)

	router := chi.NewRouter()
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gatehouse", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// registrationUserStore is the full store surface main wires: draft
// persistence for the pipeline plus email confirmation for the handler.
type registrationUserStore interface {
	user.Store
	ConfirmEmail(ctx context.Context, id domain.UserID) error
}
