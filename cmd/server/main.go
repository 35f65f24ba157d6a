package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // request ids, recovery, body limits
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/config" // Internal config loader
	"github.com/iliyamo/identity-authority/internal/database"
	"github.com/iliyamo/identity-authority/internal/handler"
	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/mail"
	"github.com/iliyamo/identity-authority/internal/middleware"
	"github.com/iliyamo/identity-authority/internal/queue"
	"github.com/iliyamo/identity-authority/internal/ratelimit"
	"github.com/iliyamo/identity-authority/internal/repository"
	"github.com/iliyamo/identity-authority/internal/router" // Internal router setup
	"github.com/iliyamo/identity-authority/internal/service"
)

// stores is what the services need from persistence.
type stores interface {
	service.AccountStore
	service.SessionStore
}

// sqlStore joins the two MySQL repositories into one value.
type sqlStore struct {
	*repository.AccountRepo
	*repository.SessionRepo
}

func main() {
	cfg := config.Load() // Load environment config
	sec := config.LoadSecurityConfig()
	limits := config.LoadRateLimits()
	log := logging.New(cfg.Env, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.System{}
	checks := map[string]handler.Check{}

	var store stores
	switch cfg.StoreDriver {
	case "memory":
		log.Warn(ctx, "using in-memory store; all accounts are lost on restart")
		store = repository.NewMemoryStore()
	default:
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Error(ctx, "open database", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Error(ctx, "migrate database", "err", err)
			os.Exit(1)
		}
		store = sqlStore{repository.NewAccountRepo(db), repository.NewSessionRepo(db)}
		checks["database"] = dbCheck(db)
	}

	// Redis is optional: without it, rate limits and pending 2FA logins
	// live in this process only.
	var challenges service.ChallengeStore
	var globalRL, authRL, userRL ratelimit.Limiter
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn(ctx, "redis unavailable; using in-process rate limits and 2FA challenges", "err", err)
		challenges = repository.NewMemoryChallengeStore(clk)
		globalRL = ratelimit.NewMemoryLimiter(limits.Global)
		authRL = ratelimit.NewMemoryLimiter(limits.Auth)
		userRL = ratelimit.NewMemoryLimiter(limits.User)
	} else {
		defer rdb.Close()
		challenges = repository.NewRedisChallengeStore(rdb, "")
		globalRL = withFallback(ratelimit.NewRedisLimiter(rdb, limits.Global), ratelimit.NewMemoryLimiter(limits.Global), log)
		authRL = withFallback(ratelimit.NewRedisLimiter(rdb, limits.Auth), ratelimit.NewMemoryLimiter(limits.Auth), log)
		userRL = withFallback(ratelimit.NewRedisLimiter(rdb, limits.User), ratelimit.NewMemoryLimiter(limits.User), log)
		checks["redis"] = redisCheck(rdb)
	}

	var sender mail.Sender
	switch cfg.MailDriver {
	case "amqp":
		sender = queue.NewMailPublisher(cfg.RabbitMQURL, cfg.MailQueue, log)
		if cfg.MailRelay {
			relay := &queue.MailConsumer{URL: cfg.RabbitMQURL, Queue: cfg.MailQueue, Dir: "logs", Log: log.With("component", "mail-relay")}
			go func() {
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error(ctx, "mail relay stopped", "err", err)
				}
			}()
		}
	default:
		sender = mail.NewLogSender(log)
	}

	tokens := service.NewTokenIssuer(service.TokenConfig{
		AccessSecret:   []byte(cfg.JWTSecret),
		RefreshSecret:  []byte(cfg.JWTRefreshSecret),
		AccessTTL:      cfg.AccessTTL,
		RefreshTTL:     cfg.RefreshTTL,
		MFATTL:         cfg.MFATTL,
		MFAMaxAttempts: sec.MFAMaxAttempts,
	}, store, store, challenges, clk, log)
	sessions := service.NewSessionRegistry(store, clk)
	codec := service.NewSecretCodec(store, clk, sec.ResetTokenTTL, sec.VerifyTokenTTL)
	notifier := service.NewNotifier(sender, cfg.BaseURL, cfg.MailFrom, log)
	auth, err := service.NewAuthenticator(store, tokens, sessions, codec, notifier, clk, log, sec, cfg.BcryptCost)
	if err != nil {
		log.Error(ctx, "build authenticator", "err", err)
		os.Exit(1)
	}
	tfa := service.NewTwoFactor(store, tokens, clk, log, sec)

	janitor := service.NewSessionJanitor(store, clk, log.With("component", "session-janitor"), cfg.SessionGCInterval, cfg.SessionRetention)
	go janitor.Run(ctx)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HTTPErrorHandler = handler.NewErrorHandler(cfg.Production(), log)
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("64K"))

	lim := router.Limits{Config: limits, Global: globalRL, Auth: authRL, User: userRL, Log: log}
	router.RegisterRoutes(e, checks)
	router.RegisterAuth(e, handler.NewAuthHandler(auth, tokens, tfa, cfg.RequestTimeout), tokens, lim)
	router.RegisterUsers(e, handler.NewUserHandler(auth, sessions, cfg.RequestTimeout), tokens, lim)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info(ctx, "listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver, "mail", cfg.MailDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown", "err", err)
	}
	auth.Wait() // pending reset and verification mails
	log.Info(shutdownCtx, "server exited")
}

func withFallback(primary, secondary ratelimit.Limiter, log logging.Logger) ratelimit.Limiter {
	return ratelimit.Fallback{
		Primary:   primary,
		Secondary: secondary,
		OnError: func(ctx context.Context, err error) {
			log.Warn(ctx, "redis rate limiter failed; using in-process bucket", "err", err)
		},
	}
}

func dbCheck(db *sql.DB) handler.Check {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func redisCheck(rdb *redis.Client) handler.Check {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
