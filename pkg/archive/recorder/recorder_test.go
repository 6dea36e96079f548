package recorder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/archive/storage"
	"mercator-hq/apiflow/pkg/logstore"
)

// gatedStorage blocks every Store until release is closed.
type gatedStorage struct {
	*storage.MemoryStorage
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStorage) Store(ctx context.Context, e *logstore.Entry) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.MemoryStorage.Store(ctx, e)
}

func finished(id string) logstore.Entry {
	e := logstore.NewEntry(id, time.Now())
	e.Method = "GET"
	e.Path = "/svc/x"
	e.SetStatus(200)
	return e
}

func TestRecorder_WritesOnClose(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := New(store, &Config{AsyncBuffer: 10})

	for _, id := range []string{"a", "b", "c"} {
		rec.Record(finished(id))
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	n, err := store.Count(context.Background(), &archive.Query{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestRecorder_LogStoreObserver(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := New(store, nil)

	logs := logstore.New(10)
	logs.OnFinish(rec.Record)

	e := finished("req")
	logs.Begin(e)
	logs.Finish("req", func(e *logstore.Entry) { e.SetStatus(201) })
	rec.Close()

	got, err := store.Query(context.Background(), &archive.Query{})
	if err != nil || len(got) != 1 {
		t.Fatalf("Query() = %v, %v", got, err)
	}
	if got[0].StatusCode() != 201 || got[0].InFlight {
		t.Errorf("archived entry = %+v, want final 201", got[0])
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	gated := &gatedStorage{
		MemoryStorage: storage.NewMemoryStorage(),
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}

	var dropped atomic.Int32
	rec := New(gated, &Config{
		AsyncBuffer:  1,
		WriteTimeout: time.Second,
		OnDrop:       func() { dropped.Add(1) },
	})

	// The worker takes the first entry and blocks in Store
	rec.Record(finished("first"))
	<-gated.entered

	rec.Record(finished("queued"))
	rec.Record(finished("dropped-1"))
	rec.Record(finished("dropped-2"))

	if got := dropped.Load(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}

	close(gated.release)
	rec.Close()

	n, _ := gated.Count(context.Background(), &archive.Query{})
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	var dropped atomic.Int32
	rec := New(storage.NewMemoryStorage(), &Config{OnDrop: func() { dropped.Add(1) }})
	rec.Close()
	rec.Close()

	rec.Record(finished("late"))
	if dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", dropped.Load())
	}
}
