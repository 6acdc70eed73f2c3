package bus

import (
	"context"

	"github.com/yungbote/memoirvault-backend/internal/sse"
)

// Bus fans job events out across processes. With a single process the local
// bus just loops messages back into the hub.
type Bus interface {
	Publish(ctx context.Context, msg sse.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m sse.SSEMessage)) error
	Close() error
}

type localBus struct {
	onMsg func(m sse.SSEMessage)
}

// NewLocalBus is the in-process fallback used when REDIS_ADDR is unset.
func NewLocalBus() Bus {
	return &localBus{}
}

func (b *localBus) Publish(ctx context.Context, msg sse.SSEMessage) error {
	if b.onMsg != nil {
		b.onMsg(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m sse.SSEMessage)) error {
	b.onMsg = onMsg
	return nil
}

func (b *localBus) Close() error { return nil }
