// Package audit implements the async audit log pipeline (spec.md §6.1,
// SPEC_FULL.md §4.14): a buffered channel feeding a single flushing
// goroutine, so recalculation and webhook handling never block on a
// database write. A full buffer drops the oldest entry rather than the
// newest, favoring recent activity, and increments a dropped counter.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/model"
)

// Sink is the durable destination for audit entries.
type Sink interface {
	WriteAuditEntries(ctx context.Context, entries []*model.AuditEntry) error
}

// LogSink is a fallback Sink that only logs; used when no database is
// configured (spec.md's local/dev mode).
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) WriteAuditEntries(_ context.Context, entries []*model.AuditEntry) error {
	for _, e := range entries {
		s.Logger.Info().
			Int64("installation_id", e.InstallationID).
			Str("action", e.Action).
			Str("details", e.DetailsJSON).
			Msg("audit entry")
	}
	return nil
}

// Config controls the pipeline's buffering and flush behavior.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the spec's production defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
	}
}

// Pipeline is the async audit ingestion engine: one buffered channel, one
// flushing goroutine, graceful drain on Stop.
type Pipeline struct {
	logger zerolog.Logger
	config Config
	sink   Sink

	mu      sync.Mutex
	ch      chan *model.AuditEntry
	cancel  context.CancelFunc
	done    chan struct{}

	received int64
	written  int64
	dropped  int64
}

// New builds an audit pipeline. Call Start before recording entries.
func New(logger zerolog.Logger, sink Sink, config ...Config) *Pipeline {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Pipeline{
		logger: logger.With().Str("component", "audit_pipeline").Logger(),
		config: cfg,
		sink:   sink,
		ch:     make(chan *model.AuditEntry, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the flushing goroutine.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	go p.loop(ctx)
	p.logger.Info().
		Int("buffer_size", p.config.BufferSize).
		Int("batch_size", p.config.BatchSize).
		Dur("flush_interval", p.config.FlushInterval).
		Msg("audit pipeline started")
}

// Stop cancels the flushing goroutine and waits for a final drain.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-p.done
	p.logger.Info().
		Int64("received", p.received).
		Int64("written", p.written).
		Int64("dropped", p.dropped).
		Msg("audit pipeline stopped")
}

// Record submits an entry for durable logging. Non-blocking: if the
// buffer is full, the oldest queued entry is dropped to make room.
func (p *Pipeline) Record(installationID int64, action, detailsJSON string) {
	e := &model.AuditEntry{
		InstallationID: installationID,
		Action:         action,
		DetailsJSON:    detailsJSON,
		Timestamp:      time.Now().UTC(),
	}
	select {
	case p.ch <- e:
		p.received++
	default:
		select {
		case <-p.ch:
			p.dropped++
		default:
		}
		select {
		case p.ch <- e:
			p.received++
		default:
			p.dropped++
			p.logger.Warn().Str("action", action).Msg("audit entry dropped: buffer full")
		}
	}
}

// Stats is a snapshot of the pipeline's counters.
type Stats struct {
	Received int64
	Written  int64
	Dropped  int64
}

// Stats returns the current received/written/dropped counters.
func (p *Pipeline) Stats() Stats {
	return Stats{Received: p.received, Written: p.written, Dropped: p.dropped}
}

func (p *Pipeline) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditEntry, 0, p.config.BatchSize)
	for {
		select {
		case <-ctx.Done():
			batch = p.drain(batch)
			if len(batch) > 0 {
				p.flush(batch)
			}
			return
		case e := <-p.ch:
			batch = append(batch, e)
			if len(batch) >= p.config.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// drain empties any entries left in the channel without blocking, for a
// clean shutdown flush.
func (p *Pipeline) drain(batch []*model.AuditEntry) []*model.AuditEntry {
	for {
		select {
		case e := <-p.ch:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (p *Pipeline) flush(batch []*model.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.sink.WriteAuditEntries(ctx, batch); err != nil {
		p.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("audit flush failed")
		return
	}
	p.written += int64(len(batch))
}
