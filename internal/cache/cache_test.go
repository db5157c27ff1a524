package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourorg/portal-api/internal/canon"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "detail:condominium:c1", Key("condominium", "c1"))
	assert.Equal(t, "detail:miss:listing:l1", MissKey("listing", "l1"))
	assert.Equal(t, "detail:lock:listing:l1", LockKey("listing", "l1"))
}

func TestEnvelopeStale(t *testing.T) {
	var env Envelope
	env.Meta.StaleAfter = time.Now().Add(time.Minute)
	assert.False(t, env.Stale())
	env.Meta.StaleAfter = time.Now().Add(-time.Minute)
	assert.True(t, env.Stale())
}

func TestNilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Read(ctx, nil, "detail:condominium:c1"))
	assert.NoError(t, Write(ctx, nil, "detail:condominium:c1", canon.Row{"id": "c1"}, time.Hour, time.Minute, "api"))
}
