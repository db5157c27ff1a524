package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	httpapi "github.com/yourorg/portal-api/http"
	"github.com/yourorg/portal-api/internal/detail"
	"github.com/yourorg/portal-api/internal/env"
	"github.com/yourorg/portal-api/internal/events"
	"github.com/yourorg/portal-api/internal/logger"
	"github.com/yourorg/portal-api/internal/redisx"
	"github.com/yourorg/portal-api/internal/refresh"
	"github.com/yourorg/portal-api/internal/search"
	"github.com/yourorg/portal-api/internal/store"
	"github.com/yourorg/portal-api/internal/warm"
	"github.com/yourorg/portal-api/viacep"
)

func main() {
	port := env.GetInt("PORT", 4003)
	dsn := env.Must("PG_DSN")

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

	var rdb *redisx.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redisx.New(addr, os.Getenv("REDIS_PASSWORD"), env.GetInt("REDIS_DB", 0))
		if err := rdb.Ping(context.Background()); err != nil {
			log.Printf("[WARN] redis unavailable, serving uncached: %v", err)
			rdb = nil
		}
	}

	svc := &detail.Service{Sources: st, Enricher: viacep.NewClient()}

	cacheTTL := time.Duration(env.GetInt("CACHE_TTL_SECONDS", 3600)) * time.Second
	staleAfter := time.Duration(env.GetInt("CACHE_STALE_SECONDS", 300)) * time.Second

	pub := events.NewInMemory(256)
	warmer := &warm.Warmer{Service: svc, Cache: rdb, Pub: pub, CacheTTL: cacheTTL, StaleAfter: staleAfter}
	refresher := refresh.New(256, 2, func(ctx context.Context, j refresh.Job) {
		if err := warmer.Refresh(ctx, j.EntityType, j.EntityID, "refresh"); err != nil {
			log.Printf("[WARN] background refresh failed for %s %s: %v", j.EntityType, j.EntityID, err)
		}
	})

	idx := &search.Indexer{Pub: pub}
	go idx.Run(context.Background())

	deps := httpapi.DetailDeps{
		Service:     svc,
		Refetch:     func(entityType, id string) { refresher.Enqueue(refresh.Job{EntityType: entityType, EntityID: id}) },
		CacheTTL:    cacheTTL,
		StaleAfter:  staleAfter,
		NegativeTTL: time.Duration(env.GetInt("CACHE_NEGATIVE_SECONDS", 60)) * time.Second,
	}
	if rdb != nil {
		// a typed nil inside the interface would defeat the nil checks
		deps.Cache = rdb
	}
	router := BuildRouter(deps)

	log.Printf("portal-api listening on :%d", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), logger.Middleware(router)); err != nil {
		log.Fatal(err)
	}
}
