package search

import (
    "context"
    "log"
    "time"

    "github.com/yourorg/portal-api/internal/events"
)

// Indexer consumes detail.refreshed events and logs them. The portal's
// search projection is maintained by an external pipeline; this consumer
// exists so refresh activity is observable.
type Indexer struct {
    Pub events.Publisher
}

func (i *Indexer) Run(ctx context.Context) {
    sub := i.Pub.SubscribeDetailRefreshed()
    for {
        select {
        case <-ctx.Done():
            return
        case evt := <-sub:
            log.Printf("indexer: detail.refreshed type=%s id=%s source=%s at=%s", evt.EntityType, evt.EntityID, evt.Source, time.Now().Format(time.RFC3339))
        }
    }
}
