package chain

import (
	"context"
	"sync"
	"time"
)

// DefaultValidateInterval is used when NewValidator is given a non-positive interval.
const DefaultValidateInterval = 15 * time.Second

// Result is the outcome of one validation pass.
type Result struct {
	Valid     bool      `json:"valid"`
	Blocks    int       `json:"blocks"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`

	// Err is the underlying error, nil when Valid.
	Err error `json:"-"`
}

// Validator periodically re-validates a Chain independently of appends.
// It never writes to the log.
type Validator struct {
	chain    *Chain
	interval time.Duration
	logger   Logger

	mu       sync.RWMutex
	last     Result
	onResult func(Result)

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewValidator creates a Validator for c.
func NewValidator(c *Chain, interval time.Duration) *Validator {
	if interval <= 0 {
		interval = DefaultValidateInterval
	}
	return &Validator{
		chain:    c,
		interval: interval,
		logger:   noopLogger{},
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger.
func (v *Validator) SetLogger(logger Logger) {
	v.logger = logger
}

// OnResult registers a callback invoked after every pass.
func (v *Validator) OnResult(fn func(Result)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onResult = fn
}

// Start begins periodic validation. The first pass runs after one interval.
func (v *Validator) Start(ctx context.Context) {
	v.wg.Add(1)
	go v.loop(ctx)
	v.logger.Info("chain validator started", "interval", v.interval, "path", v.chain.Path())
}

// Stop stops the validation loop and waits for it to exit.
// Safe to call multiple times.
func (v *Validator) Stop() {
	v.stopOnce.Do(func() {
		close(v.done)
	})
	v.wg.Wait()
}

func (v *Validator) loop(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.done:
			return
		case <-ticker.C:
			v.Check()
		}
	}
}

// Check runs one validation pass, records and reports the result.
func (v *Validator) Check() Result {
	count, err := v.chain.Validate()
	res := Result{
		Valid:     err == nil,
		Blocks:    count,
		Err:       err,
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		res.Error = err.Error()
		v.logger.Error("audit chain tampered", "path", v.chain.Path(), "blocks", count, "error", err)
	} else {
		v.logger.Info("audit chain valid", "path", v.chain.Path(), "blocks", count)
	}

	v.mu.Lock()
	v.last = res
	fn := v.onResult
	v.mu.Unlock()

	if fn != nil {
		fn(res)
	}
	return res
}

// Last returns the most recent result. CheckedAt is zero before the first pass.
func (v *Validator) Last() Result {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}
