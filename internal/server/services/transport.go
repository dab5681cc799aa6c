package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/livebell/engine/internal/logging"
)

// LogTransport is a Transport for local runs: sends are logged instead of
// pushed anywhere and deletes always succeed.
type LogTransport struct {
	logger logging.Logger
	seq    atomic.Int64
}

func NewLogTransport(logger logging.Logger) *LogTransport {
	return &LogTransport{logger: logger.With("module", "transport")}
}

func (t *LogTransport) Send(ctx context.Context, destinationID int64, content string) (string, error) {
	handle := fmt.Sprintf("log-%d", t.seq.Add(1))
	t.logger.Info(ctx, "send", "destination_id", destinationID, "handle", handle, "content", content)
	return handle, nil
}

func (t *LogTransport) Delete(ctx context.Context, destinationID int64, handle string) error {
	t.logger.Info(ctx, "delete", "destination_id", destinationID, "handle", handle)
	return nil
}
