package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultJournalSize is the buffer used when NewJournal is given a size <= 0.
const DefaultJournalSize = 64

// writeTimeout bounds a single SQLite insert.
const writeTimeout = 5 * time.Second

// Logger is the logging surface the journal needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Journal writes entries to a Repository from a background goroutine.
type Journal struct {
	repo    Repository
	entries chan Entry
	logger  Logger
	now     func() time.Time
	dropped atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewJournal creates a journal buffering up to size entries.
func NewJournal(repo Repository, size int) *Journal {
	if size <= 0 {
		size = DefaultJournalSize
	}
	return &Journal{
		repo:    repo,
		entries: make(chan Entry, size),
		logger:  noopLogger{},
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// SetLogger sets the journal's logger.
func (j *Journal) SetLogger(logger Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// Record queues e without blocking. It returns false when the buffer is full.
func (j *Journal) Record(e Entry) bool {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now().UTC()
	}
	select {
	case j.entries <- e:
		return true
	default:
		n := j.dropped.Add(1)
		j.logger.Warn("audit journal full, entry dropped",
			"action", e.Action,
			"entity_type", e.EntityType,
			"dropped", n,
		)
		return false
	}
}

// Dropped returns how many entries Record has discarded.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// List reads entries straight from the repository.
func (j *Journal) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return j.repo.List(ctx, filter)
}

// Start launches the writer goroutine.
func (j *Journal) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop writes any queued entries and waits for the writer to exit.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
	})
	j.wg.Wait()
}

func (j *Journal) run(ctx context.Context) {
	defer j.wg.Done()
	for {
		select {
		case e := <-j.entries:
			j.write(e)
		case <-j.done:
			j.drain()
			return
		case <-ctx.Done():
			j.drain()
			return
		}
	}
}

func (j *Journal) drain() {
	for {
		select {
		case e := <-j.entries:
			j.write(e)
		default:
			return
		}
	}
}

func (j *Journal) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.repo.Create(ctx, &e); err != nil {
		j.logger.Error("writing audit entry failed",
			"action", e.Action,
			"entity_type", e.EntityType,
			"error", err,
		)
		return
	}
	j.logger.Debug("audit entry written", "id", e.ID, "action", e.Action)
}
