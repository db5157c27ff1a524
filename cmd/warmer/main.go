package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/yourorg/portal-api/internal/detail"
	"github.com/yourorg/portal-api/internal/env"
	"github.com/yourorg/portal-api/internal/events"
	"github.com/yourorg/portal-api/internal/redisx"
	"github.com/yourorg/portal-api/internal/search"
	"github.com/yourorg/portal-api/internal/store"
	"github.com/yourorg/portal-api/internal/warm"
	"github.com/yourorg/portal-api/viacep"
)

func main() {
	dsn := env.Must("PG_DSN")
	redisAddr := env.Must("REDIS_ADDR")

	interval := parseDuration(os.Getenv("WARMER_INTERVAL"), 30*time.Minute)
	pause := parseDuration(os.Getenv("WARMER_PAUSE"), 200*time.Millisecond)
	requestTimeout := parseDuration(os.Getenv("WARMER_REQUEST_TIMEOUT"), 12*time.Second)
	runOnce := parseBool(os.Getenv("WARMER_RUN_ONCE"), false)
	cacheTTL := time.Duration(env.GetInt("CACHE_TTL_SECONDS", 3600)) * time.Second
	staleAfter := time.Duration(env.GetInt("CACHE_STALE_SECONDS", 300)) * time.Second

	st, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("store open error: %v", err)
	}
	defer st.DB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := st.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("postgres ping error: %v", err)
	}
	if err := st.Migrate(ctx); err != nil {
		cancel()
		log.Fatalf("postgres migrate error: %v", err)
	}
	cancel()

	rdb := redisx.New(redisAddr, os.Getenv("REDIS_PASSWORD"), env.GetInt("REDIS_DB", 0))
	if err := rdb.Ping(context.Background()); err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	pub := events.NewInMemory(256)
	svc := &detail.Service{Sources: st, Enricher: viacep.NewClient()}
	warmer := &warm.Warmer{Service: svc, Cache: rdb, Pub: pub, CacheTTL: cacheTTL, StaleAfter: staleAfter}

	job := &warm.BulkJob{
		Store:  st,
		Warmer: warmer,
		Config: warm.BulkConfig{
			Interval:             interval,
			PauseBetweenEntities: pause,
			RequestTimeout:       requestTimeout,
		},
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := &search.Indexer{Pub: pub}
	go idx.Run(rootCtx)

	if runOnce {
		if err := job.RunOnce(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("warm run failed: %v", err)
		}
		return
	}

	if err := job.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("warm job stopped with error: %v", err)
	}
}

func parseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	dur, err := time.ParseDuration(v)
	if err == nil {
		return dur
	}
	if i, err2 := strconv.Atoi(v); err2 == nil {
		return time.Duration(i) * time.Second
	}
	return def
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
