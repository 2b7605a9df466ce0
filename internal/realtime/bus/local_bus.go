package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/questweaver/internal/realtime"
)

// localBus delivers messages within the process. Used when REDIS_ADDR is
// unset.
type localBus struct {
	mu        sync.RWMutex
	receivers []func(realtime.SSEMessage)
}

func NewLocalBus() Bus { return &localBus{} }

func (b *localBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.receivers {
		fn(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	b.receivers = append(b.receivers, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	b.receivers = nil
	b.mu.Unlock()
	return nil
}
