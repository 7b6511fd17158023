package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/model"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]*model.AuditEntry
}

func (s *fakeSink) WriteAuditEntries(_ context.Context, entries []*model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*model.AuditEntry, len(entries))
	copy(cp, entries)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestRecordFlushesOnStop(t *testing.T) {
	sink := &fakeSink{}
	p := New(zerolog.Nop(), sink, Config{BufferSize: 10, BatchSize: 100, FlushInterval: time.Hour})
	p.Start(context.Background())

	p.Record(1, "recalculate", `{"project":1}`)
	p.Record(1, "save_baseline", `{"project":1}`)
	p.Stop()

	if got := sink.count(); got != 2 {
		t.Fatalf("expected 2 entries flushed on stop, got %d", got)
	}
	if p.Stats().Written != 2 {
		t.Fatalf("expected written=2, got %d", p.Stats().Written)
	}
}

func TestRecordFlushesOnBatchSize(t *testing.T) {
	sink := &fakeSink{}
	p := New(zerolog.Nop(), sink, Config{BufferSize: 10, BatchSize: 2, FlushInterval: time.Hour})
	p.Start(context.Background())

	p.Record(1, "a", "{}")
	p.Record(1, "b", "{}")

	deadline := time.Now().Add(time.Second)
	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := sink.count(); got != 2 {
		t.Fatalf("expected batch of 2 to flush immediately, got %d", got)
	}
	p.Stop()
}

func TestRecordDropsOldestWhenBufferFull(t *testing.T) {
	sink := &fakeSink{}
	p := New(zerolog.Nop(), sink, Config{BufferSize: 1, BatchSize: 100, FlushInterval: time.Hour})
	// No Start: the channel never drains, so Record must drop to make room.
	p.Record(1, "first", "{}")
	p.Record(1, "second", "{}")

	if p.Stats().Dropped != 1 {
		t.Fatalf("expected 1 dropped entry, got %d", p.Stats().Dropped)
	}
	queued := <-p.ch
	if queued.Action != "second" {
		t.Fatalf("expected the newer entry to survive, got %q", queued.Action)
	}
}

func TestLogSinkNeverErrors(t *testing.T) {
	s := LogSink{Logger: zerolog.Nop()}
	err := s.WriteAuditEntries(context.Background(), []*model.AuditEntry{
		{InstallationID: 1, Action: "x", DetailsJSON: "{}"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
