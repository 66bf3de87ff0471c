package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultQueueSize is used when NewBus is given a non-positive size.
const DefaultQueueSize = 10

// dropLogInterval bounds "queue full" warnings to one per interval.
const dropLogInterval = 5 * time.Second

// Logger is the logging interface used by the link package.
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

// roleLink is the per-role state.
type roleLink struct {
	connected    *Semaphore
	disconnected *Semaphore
	reconnect    *Semaphore

	mu             sync.Mutex
	up             bool
	peer           string
	expectTeardown bool
}

// Bus is the hand-off point between radio callbacks and the control loop.
// Callback methods (On*) never block. All methods are safe for concurrent use.
type Bus struct {
	links    map[Role]*roleLink
	readings chan string
	peers    chan string

	dropped atomic.Uint64
	dropLog *rate.Limiter

	logger Logger
}

// NewBus creates a Bus whose queues hold queueSize items each.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		links:    make(map[Role]*roleLink, 2),
		readings: make(chan string, queueSize),
		peers:    make(chan string, queueSize),
		dropLog:  rate.NewLimiter(rate.Every(dropLogInterval), 1),
		logger:   noopLogger{},
	}
	for _, r := range Roles() {
		b.links[r] = &roleLink{
			connected:    NewSemaphore(),
			disconnected: NewSemaphore(),
			reconnect:    NewSemaphore(),
		}
	}
	return b
}

// SetLogger sets the logger.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

func (b *Bus) link(role Role) *roleLink {
	return b.links[role]
}

// ─── Radio side ────────────────────────────────────────────────────

// OnConnected records that role's peer is up. For the mobile role the peer
// address is queued for the control loop to resolve.
func (b *Bus) OnConnected(role Role, peer string) {
	l := b.link(role)
	if l == nil {
		b.logger.Warn("connect for unknown role", "role", role, "peer", peer)
		return
	}

	l.mu.Lock()
	l.up = true
	l.peer = peer
	l.mu.Unlock()

	if role == RoleMobile {
		b.enqueue(b.peers, peer, "peer", role)
	}
	l.connected.Give()
	b.logger.Info("link connected", "role", role, "peer", peer)
}

// OnDisconnected records that role's link went down. A disconnect the
// control loop asked for signals the disconnected semaphore; any other
// signals reconnect.
func (b *Bus) OnDisconnected(role Role, reason string) {
	l := b.link(role)
	if l == nil {
		b.logger.Warn("disconnect for unknown role", "role", role, "reason", reason)
		return
	}

	l.mu.Lock()
	wasUp := l.up
	expected := l.expectTeardown
	l.up = false
	l.peer = ""
	l.expectTeardown = false
	l.mu.Unlock()

	if expected {
		l.disconnected.Give()
		b.logger.Info("link disconnected", "role", role, "reason", reason)
		return
	}
	if wasUp {
		l.reconnect.Give()
	}
	b.logger.Warn("link lost", "role", role, "reason", reason)
}

// OnData queues a sensor reading. Data on the mobile role, or on a sensor
// link that is not up, is dropped.
func (b *Bus) OnData(role Role, peer string, data []byte) {
	l := b.link(role)
	if l == nil || role != RoleSensor {
		b.logger.Debug("ignoring data", "role", role, "peer", peer, "bytes", len(data))
		return
	}

	l.mu.Lock()
	up := l.up
	l.mu.Unlock()
	if !up {
		b.logger.Debug("ignoring sensor data while disconnected", "peer", peer)
		return
	}
	b.enqueue(b.readings, string(data), "reading", role)
}

func (b *Bus) enqueue(q chan string, item, kind string, role Role) {
	select {
	case q <- item:
	default:
		n := b.dropped.Add(1)
		if b.dropLog.Allow() {
			b.logger.Warn("queue full, dropping", "queue", kind, "role", role, "dropped_total", n)
		}
	}
}

// Dropped returns how many queued items have been dropped since start.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// ─── Control loop side ─────────────────────────────────────────────

// Prepare clears stale signals and queued items for role before a new
// discovery starts.
func (b *Bus) Prepare(role Role) {
	l := b.link(role)
	if l == nil {
		return
	}
	l.connected.Drain()
	l.disconnected.Drain()
	l.reconnect.Drain()

	q := b.readings
	if role == RoleMobile {
		q = b.peers
	}
	for {
		select {
		case <-q:
		default:
			return
		}
	}
}

// ExpectTeardown marks the next disconnect of role as requested.
func (b *Bus) ExpectTeardown(role Role) {
	if l := b.link(role); l != nil {
		l.mu.Lock()
		l.expectTeardown = true
		l.mu.Unlock()
	}
}

// WaitConnected blocks until role connects. A positive timeout bounds the
// wait; it reports false when the timeout elapsed first.
func (b *Bus) WaitConnected(ctx context.Context, role Role, timeout time.Duration) (bool, error) {
	l := b.link(role)
	if l == nil {
		return false, ErrUnknownRole
	}
	if timeout <= 0 {
		if err := l.connected.Take(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return l.connected.TakeTimeout(ctx, timeout)
}

// WaitDisconnected blocks until a requested teardown of role completes.
func (b *Bus) WaitDisconnected(ctx context.Context, role Role) error {
	l := b.link(role)
	if l == nil {
		return ErrUnknownRole
	}
	return l.disconnected.Take(ctx)
}

// LinkLost reports, once, that role dropped without a teardown request.
func (b *Bus) LinkLost(role Role) bool {
	l := b.link(role)
	if l == nil {
		return false
	}
	return l.reconnect.TryTake()
}

// NextReading returns the oldest queued sensor reading.
func (b *Bus) NextReading() (string, bool) {
	select {
	case r := <-b.readings:
		return r, true
	default:
		return "", false
	}
}

// NextPeer returns the oldest queued mobile peer address.
func (b *Bus) NextPeer() (string, bool) {
	select {
	case p := <-b.peers:
		return p, true
	default:
		return "", false
	}
}

// Connected reports whether role's link is up and with which peer.
func (b *Bus) Connected(role Role) (string, bool) {
	l := b.link(role)
	if l == nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer, l.up
}
