// Package sweeper runs the reclamation sweep inside the asynq worker loop.
package sweeper

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/driftshare/driftshare/internal/queue"
	"github.com/driftshare/driftshare/internal/share"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	engine *share.Engine
	log    zerolog.Logger
}

// NewProcessor constructs a sweep processor.
func NewProcessor(engine *share.Engine, logger zerolog.Logger) *Processor {
	return &Processor{engine: engine, log: logger}
}

// Handler registers the reclaim job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ReclaimSharesTask, p.handleReclaim)
	return mux
}

func (p *Processor) handleReclaim(ctx context.Context, task *asynq.Task) error {
	stats, err := p.engine.Sweep(ctx)
	if err != nil {
		// Only a failed reclaimable scan reaches here; per-record failures are
		// logged inside Sweep and never fail the task.
		p.log.Error().Err(err).Msg("reclamation sweep failed")
		return fmt.Errorf("sweep: %w", err)
	}
	if stats.Scanned == 0 {
		p.log.Debug().Msg("nothing to reclaim")
	}
	return nil
}
