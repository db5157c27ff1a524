package httpapi

import (
    "context"
    "errors"
    "log"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/render"
    "github.com/yourorg/portal-api/internal/cache"
    "github.com/yourorg/portal-api/internal/canon"
    "github.com/yourorg/portal-api/internal/detail"
)

// DetailService is the reconciliation pipeline behind the detail routes.
type DetailService interface {
    CondominiumDetail(ctx context.Context, id string) (canon.Row, error)
    ListingDetail(ctx context.Context, id string) (canon.Row, error)
}

type DetailDeps struct {
    Service DetailService
    Cache   cache.Client
    // Refetch re-reconciles in the background after a stale cache hit.
    Refetch func(entityType, id string)
    // TTL and staleness tuning
    CacheTTL    time.Duration
    StaleAfter  time.Duration
    NegativeTTL time.Duration
}

func RegisterDetail(r chi.Router, d DetailDeps) {
    r.Get("/condominium/{id}", func(w http.ResponseWriter, req *http.Request) {
        serveDetail(w, req, d, detail.EntityCondominium)
    })
    r.Get("/listing/{id}", func(w http.ResponseWriter, req *http.Request) {
        serveDetail(w, req, d, detail.EntityListing)
    })
}

func serveDetail(w http.ResponseWriter, req *http.Request, d DetailDeps, entityType string) {
    id := chi.URLParam(req, "id")
    if id == "" {
        render.Status(req, http.StatusBadRequest)
        render.JSON(w, req, map[string]any{"error": "id_required"})
        return
    }
    ctx := req.Context()

    if d.Cache != nil {
        if ok, _ := d.Cache.Exists(ctx, cache.MissKey(entityType, id)); ok {
            render.Status(req, http.StatusNotFound)
            render.JSON(w, req, map[string]any{"error": "not_found", "id": id, "cache_miss_cooldown": true})
            return
        }
        if env := cache.Read(ctx, d.Cache, cache.Key(entityType, id)); env != nil {
            // fire-and-forget background refresh if stale
            if env.Stale() && d.Refetch != nil {
                d.Refetch(entityType, id)
            }
            render.JSON(w, req, env.Data)
            return
        }
    }

    // Cold path. A short lock keeps concurrent misses from all writing the
    // cache; losers still compute and serve, they just skip the write. The
    // holder releases on every exit so a 404 or 500 does not leave the next
    // cold miss waiting out the lock TTL.
    writeCache := d.Cache != nil
    if writeCache {
        if ok, _ := d.Cache.SetNX(ctx, cache.LockKey(entityType, id), "1", 8*time.Second); !ok {
            writeCache = false
        } else {
            defer d.Cache.Del(ctx, cache.LockKey(entityType, id))
        }
    }

    var rec canon.Row
    var err error
    switch entityType {
    case detail.EntityCondominium:
        rec, err = d.Service.CondominiumDetail(ctx, id)
    default:
        rec, err = d.Service.ListingDetail(ctx, id)
    }
    if errors.Is(err, detail.ErrNotFound) {
        if d.Cache != nil {
            _ = d.Cache.Set(ctx, cache.MissKey(entityType, id), "1", maxDur(d.NegativeTTL, time.Minute))
        }
        render.Status(req, http.StatusNotFound)
        render.JSON(w, req, map[string]any{"error": "not_found", "id": id})
        return
    }
    if err != nil {
        log.Printf("[WARN] detail reconcile failed for %s %s: %v", entityType, id, err)
        render.Status(req, http.StatusInternalServerError)
        render.JSON(w, req, map[string]any{"error": "internal_error"})
        return
    }

    if writeCache {
        if err := cache.Write(ctx, d.Cache, cache.Key(entityType, id), rec, d.CacheTTL, d.StaleAfter, "api"); err != nil {
            log.Printf("[WARN] cache write failed for %s %s: %v", entityType, id, err)
        }
    }
    render.JSON(w, req, rec)
}

func maxDur(a, b time.Duration) time.Duration { if a > 0 { return a }; return b }
