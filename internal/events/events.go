package events

import (
    "context"
)

type DetailRefreshed struct {
    EntityType string
    EntityID   string
    Source     string
}

type Publisher interface {
    PublishDetailRefreshed(ctx context.Context, evt DetailRefreshed)
    SubscribeDetailRefreshed() <-chan DetailRefreshed
}

type inMemory struct { ch chan DetailRefreshed }

func NewInMemory(buffer int) Publisher {
    if buffer <= 0 { buffer = 256 }
    return &inMemory{ ch: make(chan DetailRefreshed, buffer) }
}

func (m *inMemory) PublishDetailRefreshed(_ context.Context, evt DetailRefreshed) {
    select { case m.ch <- evt: default: }
}

func (m *inMemory) SubscribeDetailRefreshed() <-chan DetailRefreshed { return m.ch }
