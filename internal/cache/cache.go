package cache

import (
    "context"
    "encoding/json"
    "time"

    "github.com/yourorg/portal-api/internal/canon"
    "github.com/yourorg/portal-api/internal/redisx"
)

// Client is the slice of the redis wrapper the cache layer needs. A nil
// Client disables caching entirely.
type Client interface {
    Get(ctx context.Context, key string) (string, error)
    Set(ctx context.Context, key string, val string, ttl time.Duration) error
    Del(ctx context.Context, key string) error
    Exists(ctx context.Context, key string) (bool, error)
    SetNX(ctx context.Context, key string, val string, ttl time.Duration) (bool, error)
}

var _ Client = (*redisx.Client)(nil)

// Envelope wraps a reconciled detail record with staleness metadata so
// readers can serve-stale-while-revalidating.
type Envelope struct {
    Data canon.Row `json:"data"`
    Meta struct {
        LastFetch  time.Time `json:"last_fetch_at"`
        StaleAfter time.Time `json:"stale_after"`
        TTLSeconds int       `json:"ttl_seconds"`
        Source     string    `json:"source"`
    } `json:"meta"`
}

func (e *Envelope) Stale() bool { return time.Now().After(e.Meta.StaleAfter) }

func Key(entityType, id string) string     { return "detail:" + entityType + ":" + id }
func MissKey(entityType, id string) string { return "detail:miss:" + entityType + ":" + id }
func LockKey(entityType, id string) string { return "detail:lock:" + entityType + ":" + id }

// Read returns the cached envelope, or nil on miss, decode failure, or a
// nil client. Cache trouble never surfaces as an error.
func Read(ctx context.Context, c Client, key string) *Envelope {
    if c == nil { return nil }
    val, err := c.Get(ctx, key)
    if err != nil || val == "" { return nil }
    var env Envelope
    if err := json.Unmarshal([]byte(val), &env); err != nil { return nil }
    return &env
}

// Write stores a freshly reconciled record.
func Write(ctx context.Context, c Client, key string, data canon.Row, ttl, staleAfter time.Duration, source string) error {
    if c == nil { return nil }
    var env Envelope
    env.Data = data
    env.Meta.LastFetch = time.Now()
    env.Meta.StaleAfter = env.Meta.LastFetch.Add(maxDur(staleAfter, 5*time.Minute))
    env.Meta.TTLSeconds = int(maxDur(ttl, time.Hour).Seconds())
    env.Meta.Source = source
    b, err := json.Marshal(env)
    if err != nil { return err }
    return c.Set(ctx, key, string(b), time.Duration(env.Meta.TTLSeconds)*time.Second)
}

func maxDur(a, b time.Duration) time.Duration { if a > 0 { return a }; return b }
