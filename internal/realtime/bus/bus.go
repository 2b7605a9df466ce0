// Package bus forwards SSE messages between API instances so a client
// connected to one instance sees progress from runs executing on another.
package bus

import (
	"context"

	"github.com/yungbote/questweaver/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
