package share

import (
	"context"
	"fmt"
)

// SweepStats summarizes one reclamation run.
type SweepStats struct {
	Scanned        int
	Reclaimed      int
	BlobFailures   int
	RecordFailures int
}

// Sweep deletes every reclaimable share: blob first, then record, each
// failure logged and skipped so one bad record never aborts the batch. The
// sweep takes no lock against concurrent redemption; the ledger's atomicity
// already rules out over-redemption, and a redemption racing a delete simply
// observes not-found.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	now := e.now()
	recs, err := e.records.FindReclaimable(ctx, now)
	if err != nil {
		return SweepStats{}, fmt.Errorf("find reclaimable shares: %w", err)
	}

	stats := SweepStats{Scanned: len(recs)}
	for _, rec := range recs {
		if err := e.blobs.Delete(ctx, rec.BlobKey); err != nil {
			stats.BlobFailures++
			e.log.Warn().Err(err).Str("id", rec.ID).Str("key", rec.BlobKey).Msg("blob delete failed")
		}
		if err := e.records.Delete(ctx, rec.ID); err != nil {
			stats.RecordFailures++
			e.log.Warn().Err(err).Str("id", rec.ID).Msg("record delete failed")
			continue
		}
		stats.Reclaimed++
	}

	e.log.Info().
		Int("scanned", stats.Scanned).
		Int("reclaimed", stats.Reclaimed).
		Int("blob_failures", stats.BlobFailures).
		Int("record_failures", stats.RecordFailures).
		Msg("reclamation sweep finished")
	return stats, nil
}
