// Package prune bounds the history map over time. A cron schedule decides
// when a prune pass runs; each pass deletes through the history store so
// every affected peer is notified like any other removal.
package prune

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/logger"
)

// Options configures a Pruner.
type Options struct {
	// Schedule is a cron expression evaluated once per minute.
	Schedule string
	// MaxAge drops records untouched for longer. Zero disables the bound.
	MaxAge time.Duration
	// MaxRecords caps the history size, dropping oldest first. Zero
	// disables the bound.
	MaxRecords int
}

// Pruner deletes expired and overflow history records on schedule.
type Pruner struct {
	store *history.Store
	opts  Options
	cron  *gronx.Gronx
	now   func() time.Time
}

func New(store *history.Store, opts Options) (*Pruner, error) {
	g := gronx.New()
	if !g.IsValid(opts.Schedule) {
		return nil, fmt.Errorf("prune: invalid schedule %q", opts.Schedule)
	}
	return &Pruner{
		store: store,
		opts:  opts,
		cron:  g,
		now:   time.Now,
	}, nil
}

// Run blocks until ctx is done, running a prune pass whenever the schedule
// is due.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := p.cron.IsDue(p.opts.Schedule, p.now())
			if err != nil || !due {
				continue
			}
			if pruned, err := p.Prune(ctx); err != nil {
				logger.ErrorCF("prune", "Prune pass failed", map[string]any{"error": err.Error()})
			} else if pruned > 0 {
				logger.InfoCF("prune", "Prune pass completed", map[string]any{"pruned": pruned})
			}
		}
	}
}

// Prune runs one pass immediately and reports how many records it deleted.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	records := p.store.Records() // oldest first
	cutoff := int64(0)
	if p.opts.MaxAge > 0 {
		cutoff = p.now().Add(-p.opts.MaxAge).UnixMilli()
	}

	overflow := 0
	if p.opts.MaxRecords > 0 && len(records) > p.opts.MaxRecords {
		overflow = len(records) - p.opts.MaxRecords
	}

	pruned := 0
	for i, rec := range records {
		if i >= overflow && (cutoff == 0 || rec.Timestamp >= cutoff) {
			continue
		}
		if err := p.store.Delete(ctx, rec.ID); err != nil {
			var pushErr *history.PushError
			if errors.As(err, &pushErr) {
				pruned++
				continue
			}
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
