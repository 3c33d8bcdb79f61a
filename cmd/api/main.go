package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"gatekeep.dev/internal/auth"
	"gatekeep.dev/internal/cache"
	"gatekeep.dev/internal/config"
	"gatekeep.dev/internal/httpapi"
	"gatekeep.dev/internal/mailer"
	"gatekeep.dev/internal/obs"
	"gatekeep.dev/internal/policy"
	"gatekeep.dev/internal/store/pg"
	"gatekeep.dev/internal/token"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
	})

	// Redis is the cache and rate-limit backend in production; development
	// defaults to in-process stores so the API runs against Postgres alone.
	useRedis := cfg.UseRedisCache || cfg.IsProduction()
	var (
		appCache cache.Cache
		limiter  httpapi.RateLimiter
		memory   *cache.Memory
	)
	if useRedis {
		appCache = cache.NewRedis(rdb)
		limiter = httpapi.NewRedisLimiter(rdb)
	} else {
		memory = cache.NewMemory()
		appCache = memory
		limiter = httpapi.NewMemoryLimiter()
	}

	policies, err := policy.NewManager(policy.NewSQLAdapter(store.DB()))
	if err != nil {
		log.Fatalf("policy manager: %v", err)
	}

	asynqOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr(), Password: cfg.RedisPassword}
	mail := mailer.NewClient(asynqOpt)

	svc, err := auth.NewService(store, store, store, store, issuer, mail)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	var worker *mailer.WorkerManager
	if cfg.Env != "test" {
		sender := mailer.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)
		worker = mailer.NewWorkerManager(asynqOpt, mailer.NewProcessor(sender, cfg.BaseURL), cfg.WorkerConcurrency)
		if err := worker.Register(); err != nil {
			log.Fatalf("email worker: %v", err)
		}
	}

	ready := httpapi.ReadyProbe{DB: store.DB()}
	if useRedis {
		ready.Redis = rdb
	}

	api := httpapi.New(httpapi.Config{
		Auth:     svc,
		Policies: policies,
		Cache:    appCache,
		Limiter:  limiter,
		Ready:    ready,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatekeep-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if worker != nil {
		worker.Shutdown()
	}
	_ = mail.Close()
	if memory != nil {
		memory.Close()
	}
	_ = rdb.Close()
	_ = store.Close()
	log.Println("Stopped")
}
