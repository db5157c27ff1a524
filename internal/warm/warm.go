package warm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourorg/portal-api/internal/cache"
	"github.com/yourorg/portal-api/internal/detail"
	"github.com/yourorg/portal-api/internal/events"
	"github.com/yourorg/portal-api/internal/redisx"
)

// Warmer reconciles an entity and writes its cache envelope. Shared by the
// background refresher (stale cache hits) and the bulk warm job.
type Warmer struct {
	Service    *detail.Service
	Cache      *redisx.Client
	Pub        events.Publisher
	CacheTTL   time.Duration
	StaleAfter time.Duration
}

func (w *Warmer) Enabled() bool { return w != nil && w.Cache != nil && w.Service != nil }

func (w *Warmer) Refresh(ctx context.Context, entityType, id, source string) error {
	if !w.Enabled() {
		return nil
	}
	var rec map[string]any
	var err error
	switch entityType {
	case detail.EntityCondominium:
		rec, err = w.Service.CondominiumDetail(ctx, id)
	default:
		rec, err = w.Service.ListingDetail(ctx, id)
	}
	if errors.Is(err, detail.ErrNotFound) {
		// entity disappeared upstream; drop any stale envelope
		_ = w.Cache.Del(ctx, cache.Key(entityType, id))
		return nil
	}
	if err != nil {
		return err
	}
	if err := cache.Write(ctx, w.Cache, cache.Key(entityType, id), rec, w.CacheTTL, w.StaleAfter, source); err != nil {
		return err
	}
	if w.Pub != nil {
		w.Pub.PublishDetailRefreshed(ctx, events.DetailRefreshed{EntityType: entityType, EntityID: id, Source: source})
	}
	return nil
}

// IDLister is the slice of the store the bulk job needs.
type IDLister interface {
	CondominiumIDs(ctx context.Context) ([]string, error)
}

type BulkConfig struct {
	Interval             time.Duration
	PauseBetweenEntities time.Duration
	RequestTimeout       time.Duration
}

// BulkJob periodically walks every condominium and pre-warms its cache
// envelope.
type BulkJob struct {
	Store  IDLister
	Warmer *Warmer
	Logger *log.Logger
	Config BulkConfig
}

func (j *BulkJob) logf(format string, args ...any) {
	if j.Logger != nil {
		j.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (j *BulkJob) validate() error {
	if j == nil {
		return errors.New("nil bulk job")
	}
	if j.Store == nil {
		return errors.New("warm bulk job missing store")
	}
	if !j.Warmer.Enabled() {
		return errors.New("warm bulk job requires warmer with cache")
	}
	return nil
}

func (j *BulkJob) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	interval := j.Config.Interval
	if interval <= 0 {
		return j.RunOnce(ctx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.logf("warm job starting with interval %s", interval)
	if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.logf("warm job initial run error: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			j.logf("warm job stopping: %v", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.logf("warm job iteration error: %v", err)
			}
		}
	}
}

func (j *BulkJob) RunOnce(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	timeout := j.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ids, err := j.Store.CondominiumIDs(ctx)
	if err != nil {
		return fmt.Errorf("list condominium ids: %w", err)
	}
	var joined error
	warmed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		err := j.Warmer.Refresh(reqCtx, detail.EntityCondominium, id, "warmer")
		cancel()
		if err != nil {
			j.logf("warm job condominium %s error: %v", id, err)
			joined = errors.Join(joined, err)
			continue
		}
		warmed++
		if j.Config.PauseBetweenEntities > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.Config.PauseBetweenEntities):
			}
		}
	}
	j.logf("warm job warmed %d of %d condominiums", warmed, len(ids))
	return joined
}
